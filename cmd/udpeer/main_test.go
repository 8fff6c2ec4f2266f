package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSignalURL(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"ws://127.0.0.1:4000/ws?pin=1234", "ws://127.0.0.1:4000/ws?pin=1234"},
		{"wss://abc.devtunnels.ms/?pin=0042", "wss://abc.devtunnels.ms/ws?pin=0042"},
		{"abc.devtunnels.ms?pin=7", "wss://abc.devtunnels.ms/ws?pin=7"},
		{"http://10.0.0.2:9000/anything?pin=1", "ws://10.0.0.2:9000/ws?pin=1"},
		{"  https://host:1/ws?pin=55  ", "wss://host:1/ws?pin=55"},
	}

	for _, tc := range testCases {
		got, err := normalizeSignalURL(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}

	for _, bad := range []string{"ws://host:1/ws", "ws:///ws?pin=1", "::"} {
		_, err := normalizeSignalURL(bad)
		assert.Error(t, err, bad)
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a:1", "b:2"}, splitList(" a:1, ,b:2,"))
	assert.Nil(t, splitList(""))
}
