package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "upload_cache", []string{"cache_key", "url"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"upload_cache"}, []string{"cache_key", "url"}).WillReturnResult(2)

	rows := [][]any{{"a.png", "https://i/a"}, {"b.png", "https://i/b"}}
	n, err := CopyFrom(context.Background(), mock, "upload_cache", []string{"cache_key", "url"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_SchemaQualified(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"billing", "upload_cache"}, []string{"cache_key"}).WillReturnResult(1)

	n, err := CopyFrom(context.Background(), mock, "billing.upload_cache", []string{"cache_key"}, [][]any{{"a.png"}})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"upload_cache"}, []string{"cache_key"}).WillReturnError(fmt.Errorf("copy failed"))

	_, err = CopyFrom(context.Background(), mock, "upload_cache", []string{"cache_key"}, [][]any{{"a.png"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO upload_cache")
	assert.NoError(t, mock.ExpectationsWereMet())
}
