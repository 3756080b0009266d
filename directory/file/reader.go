/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package file reads a directory snapshot from a YAML document:
//
//	users:
//	  - username: alice
//	    display_name: Alice
//	    email: alice@example.com
//	    enabled: true
//	    groups: [ops]
//	groups:
//	  - name: ops
//	    members: [alice]
package file

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/suparena/dirsync/identity"
)

type document struct {
	Users  []identity.DirectoryUser  `yaml:"users"`
	Groups []identity.DirectoryGroup `yaml:"groups"`
}

// Reader reads the snapshot file afresh on every call.
type Reader struct {
	Path string
}

// New returns a Reader for path.
func New(path string) *Reader {
	return &Reader{Path: path}
}

func (r *Reader) load(ctx context.Context) (document, error) {
	if err := ctx.Err(); err != nil {
		return document{}, err
	}
	raw, err := os.ReadFile(r.Path)
	if err != nil {
		return document{}, fmt.Errorf("read snapshot: %w", err)
	}
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return document{}, fmt.Errorf("parse snapshot %s: %w", r.Path, err)
	}
	return doc, nil
}

func (r *Reader) ReadUsers(ctx context.Context) ([]identity.DirectoryUser, error) {
	doc, err := r.load(ctx)
	return doc.Users, err
}

func (r *Reader) ReadGroups(ctx context.Context) ([]identity.DirectoryGroup, error) {
	doc, err := r.load(ctx)
	return doc.Groups, err
}
