package repo

import (
	"context"
	"testing"

	"github.com/geocoder89/eventpass/internal/config"
	"github.com/stretchr/testify/require"
)

func TestOpen_Memory(t *testing.T) {
	s, err := Open(context.Background(), config.Config{StoreDriver: config.StoreMemory}, nil)
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, config.StoreMemory, s.Driver)
	require.NotNil(t, s.Events)
	require.NotNil(t, s.Registrations)
	require.NotNil(t, s.Users)
	require.Nil(t, s.Ping)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.Config{StoreDriver: "sqlite"}, nil)
	require.Error(t, err)
}
