// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/casvault/cas/lib/frontend"
	"github.com/casvault/cas/lib/ids"
)

func cmdPush(ctx context.Context, fe *frontend.Frontend, args []string) error {
	fs := newFlagSet("push")
	mimeType := fs.String("type", string(ids.OctetStream), "MIME type to store the content as")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("push: expected exactly one argument (a file path or -)")
	}

	typ, err := ids.ParseMimeType(*mimeType)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}

	if fs.Arg(0) == "-" {
		cid, err := fe.PushStream(ctx, os.Stdin, typ)
		if err != nil {
			return fmt.Errorf("push: %w", err)
		}
		if cid == "" {
			return fmt.Errorf("push: lost a race writing the object, try again")
		}
		fmt.Println(cid)
		return nil
	}

	data, err := readInput(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	cid, err := fe.Push(ctx, data, typ)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	if cid == "" {
		return fmt.Errorf("push: lost a race writing the object, try again")
	}
	fmt.Println(cid)
	return nil
}

func cmdPull(ctx context.Context, fe *frontend.Frontend, args []string) error {
	fs := newFlagSet("pull")
	out := fs.String("out", "", "file to write to (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("pull: expected exactly one argument (a content id)")
	}

	cid, err := ids.ParseContentId(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	data, err := fe.Pull(ctx, cid)
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	if data == nil {
		return fmt.Errorf("pull: %s not found", cid)
	}
	return writeOutput(*out, data)
}

func cmdSet(ctx context.Context, fe *frontend.Frontend, args []string) error {
	fs := newFlagSet("set")
	mimeType := fs.String("type", string(ids.OctetStream), "MIME type to store the content as")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("set: expected two arguments: name and a file path or -")
	}
	name, path := fs.Arg(0), fs.Arg(1)

	typ, err := ids.ParseMimeType(*mimeType)
	if err != nil {
		return fmt.Errorf("set: %w", err)
	}
	data, err := readInput(path)
	if err != nil {
		return fmt.Errorf("set: %w", err)
	}

	// Fetch a fresh token immediately before writing to implement a
	// best-effort compare-and-swap within this process; a concurrent
	// writer racing us between Token and Set still loses cleanly
	// (Set returns ok=false) rather than corrupting anything.
	token, err := fe.Token(ctx, name)
	if err != nil {
		return fmt.Errorf("set: %w", err)
	}
	ok, err := fe.Set(ctx, name, data, typ, token)
	if err != nil {
		return fmt.Errorf("set: %w", err)
	}
	if !ok {
		return fmt.Errorf("set: %q changed concurrently, try again", name)
	}
	return nil
}

func cmdGet(ctx context.Context, fe *frontend.Frontend, args []string) error {
	fs := newFlagSet("get")
	out := fs.String("out", "", "file to write to (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("get: expected exactly one argument (a name)")
	}

	data, err := fe.Get(ctx, fs.Arg(0))
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	if data == nil {
		return fmt.Errorf("get: %q not found", fs.Arg(0))
	}
	return writeOutput(*out, data)
}

func cmdText(ctx context.Context, fe *frontend.Frontend, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("text: expected exactly one argument (a name)")
	}
	text, err := fe.Text(ctx, args[0])
	if err != nil {
		return fmt.Errorf("text: %w", err)
	}
	fmt.Println(text)
	return nil
}

func cmdTag(ctx context.Context, fe *frontend.Frontend, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("tag: expected exactly one argument (a name)")
	}
	tag, err := fe.Tag(ctx, args[0])
	if err != nil {
		return fmt.Errorf("tag: %w", err)
	}
	if tag == nil {
		return fmt.Errorf("tag: %q not found", args[0])
	}
	return printJSON(tag)
}

func cmdTags(ctx context.Context, fe *frontend.Frontend, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("tags: expected exactly one argument (a name)")
	}
	enc := json.NewEncoder(os.Stdout)
	for entry := range fe.Tags(ctx, args[0]) {
		if entry.Err != nil {
			return fmt.Errorf("tags: %w", entry.Err)
		}
		if err := enc.Encode(entry.Tag); err != nil {
			return fmt.Errorf("tags: %w", err)
		}
	}
	return nil
}

func cmdHas(ctx context.Context, fe *frontend.Frontend, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("has: expected exactly one argument (a name)")
	}
	has, err := fe.Has(ctx, args[0])
	if err != nil {
		return fmt.Errorf("has: %w", err)
	}
	fmt.Println(has)
	if !has {
		os.Exit(1)
	}
	return nil
}

func cmdCopy(ctx context.Context, fe *frontend.Frontend, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("copy: expected two arguments: name and alias")
	}
	name, alias := args[0], args[1]

	token, err := fe.Token(ctx, alias)
	if err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	ok, err := fe.Copy(ctx, name, alias, token)
	if err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	if !ok {
		return fmt.Errorf("copy: %q changed concurrently, try again", alias)
	}
	return nil
}

func cmdRm(ctx context.Context, fe *frontend.Frontend, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("rm: expected exactly one argument (a name)")
	}
	name := args[0]

	token, err := fe.Token(ctx, name)
	if err != nil {
		return fmt.Errorf("rm: %w", err)
	}
	if token == nil {
		return fmt.Errorf("rm: %q not found", name)
	}
	ok, err := fe.Delete(ctx, name, token)
	if err != nil {
		return fmt.Errorf("rm: %w", err)
	}
	if !ok {
		return fmt.Errorf("rm: %q changed concurrently, try again", name)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
