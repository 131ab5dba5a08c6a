package common

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	require := require.New(t)

	dir, err := ioutil.TempDir("", "hubchannel-os")
	require.Nil(err)
	defer os.RemoveAll(dir)

	sub := filepath.Join(dir, "a", "b")
	require.Nil(EnsureDir(sub, 0700))
	require.False(FileExists(sub))

	path := filepath.Join(sub, "config.yaml")
	require.Nil(WriteFileAtomic(path, []byte("first"), 0600))
	require.Nil(WriteFileAtomic(path, []byte("second"), 0600))

	data, err := ioutil.ReadFile(path)
	require.Nil(err)
	require.Equal("second", string(data))

	bak, err := ioutil.ReadFile(path + ".bak")
	require.Nil(err)
	require.Equal("first", string(bak))
	require.False(FileExists(path + ".new"))
}
