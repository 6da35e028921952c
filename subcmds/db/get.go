// Copyright (c) 2025 BVK Chaitanya

package db

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/bvk/buydips/gobs"
	"github.com/bvk/buydips/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Get struct {
	cmdutil.DBFlags

	valueType string
}

func (c *Get) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("get", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	fset.StringVar(&c.valueType, "value-type", "", "gob type name for the value")
	return "get", fset, cli.CmdFunc(c.run)
}

func (c *Get) Purpose() string {
	return "Prints the value of a key in the database"
}

func (c *Get) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("needs one (key) argument")
	}

	db, closer, err := c.DBFlags.GetDatabase(ctx)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	snap, err := db.NewSnapshot(ctx)
	if err != nil {
		return err
	}
	defer snap.Discard(ctx)

	v, err := snap.Get(ctx, args[0])
	if err != nil {
		return err
	}

	stdout := cli.Stdout(ctx)
	if len(c.valueType) == 0 {
		data, err := io.ReadAll(v)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%x\n", data)
		return nil
	}

	value, err := gobs.NewByTypename(c.valueType)
	if err != nil {
		return fmt.Errorf("invalid value-type %q: %w", c.valueType, err)
	}
	if err := gob.NewDecoder(v).Decode(value); err != nil {
		return fmt.Errorf("could not gob-decode value at key %q: %w", args[0], err)
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s\n", data)
	return nil
}
