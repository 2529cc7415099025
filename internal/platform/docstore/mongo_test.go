package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectValidatesOptions(t *testing.T) {
	_, err := Connect(context.Background(), Options{Database: "unity"})
	require.ErrorContains(t, err, "uri")

	_, err = Connect(context.Background(), Options{URI: "mongodb://localhost:27017"})
	require.ErrorContains(t, err, "database")
}

func TestCloseNilIsNoop(t *testing.T) {
	var m *Mongo
	require.NoError(t, m.Close(context.Background()))
}
