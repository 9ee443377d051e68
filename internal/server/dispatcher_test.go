package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yaftp/internal/catalog"
)

func TestDispatch(t *testing.T) {
	snapshot, err := catalog.New([]catalog.Entry{
		{Name: "a.txt", Size: 12},
		{Name: "b.bin", Size: 2500},
	})
	require.NoError(t, err)

	tests := []struct {
		name     string
		datagram string
		reply    string
		transfer bool
	}{
		{"list", "LIST", "a.txt 12\nb.bin 2500", false},
		{"list with newline", "LIST\n", "a.txt 12\nb.bin 2500", false},
		{"known file", "REQUEST:b.bin", "OK:2500", true},
		{"known file padded", "  REQUEST:a.txt \n", "OK:12", true},
		{"unknown file", "REQUEST:ghost", "ERROR: ghost not found", false},
		{"empty name", "REQUEST:", "ERROR: invalid request", false},
		{"garbage", "HELLO", "ERROR: invalid request", false},
		{"empty datagram", "", "ERROR: invalid request", false},
	}

	var d Dispatcher
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := d.Dispatch(snapshot, []byte(tt.datagram))
			assert.Equal(t, tt.reply, string(resp.Reply))
			assert.Equal(t, tt.transfer, resp.Transfer)
			if tt.transfer {
				assert.Equal(t, resp.Command.Name, resp.Entry.Name)
			}
		})
	}
}

func TestDispatchAnswersFromGivenSnapshot(t *testing.T) {
	old, err := catalog.New([]catalog.Entry{{Name: "a.txt", Size: 1}})
	require.NoError(t, err)
	fresh, err := catalog.New([]catalog.Entry{{Name: "a.txt", Size: 99}})
	require.NoError(t, err)

	var d Dispatcher
	assert.Equal(t, "OK:1", string(d.Dispatch(old, []byte("REQUEST:a.txt")).Reply))
	assert.Equal(t, "OK:99", string(d.Dispatch(fresh, []byte("REQUEST:a.txt")).Reply))
	assert.Equal(t, "", string(d.Dispatch(catalog.Empty(), []byte("LIST")).Reply))
}
