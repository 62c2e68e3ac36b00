package journal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/maltedev/catalog-sync/internal/uploader"
)

var _ uploader.Journal = (*Journal)(nil)

func TestOpenRejectsMalformedDSN(t *testing.T) {
	_, err := Open(context.Background(), "not a dsn", "Jopa")
	assert.Error(t, err)
}
