// Copyright (c) 2025 BVK Chaitanya

package cmdutil

import (
	"context"
	"flag"
	"fmt"
	"io"
	"path"

	"github.com/bvkgo/kv"
	"github.com/bvkgo/kv/kvhttp"
	"github.com/bvkgo/kvbadger"
	"github.com/dgraph-io/badger/v4"
)

// DBFlags selects the datastore for a subcommand. The default is the running
// daemon's db api endpoint; -data-dir opens a local database directly.
type DBFlags struct {
	ClientFlags

	dbURLPath string

	dataDir string
}

func (f *DBFlags) SetFlags(fset *flag.FlagSet) {
	fset.StringVar(&f.dataDir, "data-dir", "", "Path to the database directory")

	f.ClientFlags.SetFlags(fset)
	fset.StringVar(&f.dbURLPath, "db-url-path", "/db", "path to db api handler")
}

func IsGoodKey(k string) bool {
	return path.IsAbs(k) && k == path.Clean(k)
}

func (f *DBFlags) GetDatabase(ctx context.Context) (kv.Database, io.Closer, error) {
	if len(f.dataDir) != 0 {
		bopts := badger.DefaultOptions(f.dataDir)
		bdb, err := badger.Open(bopts)
		if err != nil {
			return nil, nil, fmt.Errorf("could not open the database: %w", err)
		}
		return kvbadger.New(bdb, IsGoodKey), bdb, nil
	}

	addrURL := f.ClientFlags.AddressURL()
	addrURL.Path = path.Join(addrURL.Path, f.dbURLPath)
	return kvhttp.New(addrURL, f.ClientFlags.HttpClient()), nil, nil
}
