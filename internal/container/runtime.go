// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package container detects a local container runtime (docker or podman)
// and runs one-shot containers that read stdin and write stdout.
package container

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

const (
	binDocker = "docker"
	binPodman = "podman"
)

// Runtime runs containers through a local CLI.
type Runtime interface {
	// Name returns the runtime binary ("docker" or "podman").
	Name() string

	// Available reports whether the binary is on PATH and its daemon answers.
	Available(ctx context.Context) bool

	// ImageExists returns nil when image is present locally.
	ImageExists(ctx context.Context, image string) error

	// Run starts image with --rm -i, streaming stdin in and stdout out.
	// Output the container writes to stderr is attached to the error.
	Run(ctx context.Context, image string, stdin io.Reader, stdout io.Writer) error
}

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	RunSilent(ctx context.Context, name string, args ...string) error
	RunPiped(ctx context.Context, name string, args []string, stdin io.Reader, stdout, stderr io.Writer) error
}

type osExecutor struct{}

func (osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (osExecutor) RunSilent(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

func (osExecutor) RunPiped(ctx context.Context, name string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// cli implements Runtime for one binary. Docker and podman differ only in
// the subcommand that checks for a local image.
type cli struct {
	bin        string
	imageCheck []string
	exec       executor
}

func (c *cli) Name() string { return c.bin }

func (c *cli) Available(ctx context.Context) bool {
	if _, err := c.exec.LookPath(c.bin); err != nil {
		return false
	}
	return c.exec.RunSilent(ctx, c.bin, "info") == nil
}

func (c *cli) ImageExists(ctx context.Context, image string) error {
	args := append(append([]string{}, c.imageCheck...), image)
	if err := c.exec.RunSilent(ctx, c.bin, args...); err != nil {
		return fmt.Errorf("image %s not found in %s: %w", image, c.bin, err)
	}
	return nil
}

func (c *cli) Run(ctx context.Context, image string, stdin io.Reader, stdout io.Writer) error {
	var stderr bytes.Buffer
	args := []string{"run", "--rm", "-i", "--network", "none", image}
	if err := c.exec.RunPiped(ctx, c.bin, args, stdin, stdout, &stderr); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("running %s container %s: %w: %s", c.bin, image, err, msg)
		}
		return fmt.Errorf("running %s container %s: %w", c.bin, image, err)
	}
	return nil
}

func newCLI(bin string, e executor) *cli {
	check := []string{"image", "inspect"}
	if bin == binPodman {
		check = []string{"image", "exists"}
	}
	return &cli{bin: bin, imageCheck: check, exec: e}
}

// Detect returns the named runtime when prefer is "docker" or "podman".
// With an empty prefer it tries docker, then podman.
func Detect(ctx context.Context, prefer string) (Runtime, error) {
	return detect(ctx, osExecutor{}, prefer)
}

func detect(ctx context.Context, e executor, prefer string) (Runtime, error) {
	candidates := []string{binDocker, binPodman}
	switch prefer {
	case "":
	case binDocker, binPodman:
		candidates = []string{prefer}
	default:
		return nil, fmt.Errorf("unknown container runtime %q (want docker or podman)", prefer)
	}

	for _, bin := range candidates {
		if rt := newCLI(bin, e); rt.Available(ctx) {
			return rt, nil
		}
	}
	return nil, fmt.Errorf("no container runtime available: tried %s", strings.Join(candidates, ", "))
}
