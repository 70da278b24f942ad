//go:build linux

// Package netns runs code inside Linux network namespaces.
package netns

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"

	vnetns "github.com/vishvananda/netns"
)

// RunDir holds the bind mounts of named namespaces, as iproute2 does.
const RunDir = "/var/run/netns"

var ErrClosed = errors.New("namespace closed")

// Namespace is an open handle to a network namespace.
type Namespace struct {
	h    vnetns.NsHandle
	name string
}

// New creates a fresh anonymous network namespace. It lives as long as the
// handle or any socket created inside it.
func New() (*Namespace, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	orig, err := vnetns.Get()
	if err != nil {
		return nil, fmt.Errorf("opening current namespace: %w", err)
	}
	defer orig.Close()

	h, newErr := vnetns.New()
	if err := vnetns.Set(orig); err != nil {
		// The thread is stuck in the new namespace, let it die with the
		// goroutine instead of handing it back to the scheduler.
		runtime.LockOSThread()
		if h.IsOpen() {
			h.Close()
		}
		return nil, errors.Join(fmt.Errorf("restoring namespace: %w", err), newErr)
	}
	if newErr != nil {
		return nil, fmt.Errorf("creating namespace: %w", newErr)
	}
	return &Namespace{h: h}, nil
}

// Open opens the named namespace under RunDir.
func Open(name string) (*Namespace, error) {
	h, err := vnetns.GetFromPath(filepath.Join(RunDir, name))
	if err != nil {
		return nil, fmt.Errorf("opening namespace %q: %w", name, err)
	}
	return &Namespace{h: h, name: name}, nil
}

// List returns the names of the namespaces under RunDir.
func List() ([]string, error) {
	entries, err := os.ReadDir(RunDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	slices.Sort(names)
	return names, nil
}

// Name returns the namespace name, empty for anonymous namespaces.
func (ns *Namespace) Name() string { return ns.name }

// ID returns an identifier unique to the namespace the handle refers to.
func (ns *Namespace) ID() string { return ns.h.UniqueId() }

// Do runs fn on a thread switched into ns. Sockets fn creates stay in ns.
func (ns *Namespace) Do(fn func() error) error {
	if !ns.h.IsOpen() {
		return ErrClosed
	}
	runtime.LockOSThread()

	orig, err := vnetns.Get()
	if err != nil {
		runtime.UnlockOSThread()
		return fmt.Errorf("opening current namespace: %w", err)
	}
	defer orig.Close()

	if err := vnetns.Set(ns.h); err != nil {
		runtime.UnlockOSThread()
		return fmt.Errorf("setns: %w", err)
	}
	fnErr := fn()
	if err := vnetns.Set(orig); err != nil {
		// Leave the thread locked so it exits with the goroutine.
		return errors.Join(fnErr, fmt.Errorf("restoring namespace: %w", err))
	}
	runtime.UnlockOSThread()
	return fnErr
}

// Close releases the handle.
func (ns *Namespace) Close() error {
	if !ns.h.IsOpen() {
		return nil
	}
	err := ns.h.Close()
	ns.h = vnetns.None()
	return err
}
