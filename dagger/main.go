// Package main provides a Dagger module for testing, building and publishing spamguard.
package main

import (
	"context"
	"dagger/spamguard/internal/dagger"
	"fmt"
	"strings"
)

const goImage = "golang:1.24.2-alpine"

type Spamguard struct{}

// goContainer returns a Go toolchain container with the source mounted and caches attached.
func goContainer(src *dagger.Directory) *dagger.Container {
	return dag.Container().
		From(goImage).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build")).
		WithDirectory("/src", src).
		WithWorkdir("/src").
		WithEnvVariable("CGO_ENABLED", "0")
}

// Test runs the unit tests.
func (m *Spamguard) Test(
	ctx context.Context,
	// Source code directory
	// +required
	src *dagger.Directory,
) (string, error) {
	return goContainer(src).
		WithExec([]string{"go", "test", "./..."}).
		Stdout(ctx)
}

// BuildContainer creates a distroless image running the bot.
func (m *Spamguard) BuildContainer(
	ctx context.Context,
	// Source code directory
	// +required
	src *dagger.Directory,
	// Platform to build for
	// +optional
	// +default="linux/amd64"
	platform *dagger.Platform,
) (*dagger.Container, error) {
	buildPlatform := dagger.Platform("linux/amd64")
	if platform != nil {
		buildPlatform = *platform
	}

	platformArch, err := dag.Containerd().ArchitectureOf(ctx, buildPlatform)
	if err != nil {
		return nil, fmt.Errorf("failed to get architecture: %w", err)
	}

	buildCtr := goContainer(src).
		WithEnvVariable("GOOS", "linux").
		WithEnvVariable("GOARCH", platformArch).
		WithExec([]string{"apk", "add", "--no-cache", "upx", "ca-certificates"}).
		WithExec([]string{"mkdir", "-p", "/src/bin", "/src/logs", "/src/data"}).
		WithExec([]string{"go", "build", "-ldflags=-s -w", "-o", "/src/bin/spamguard", "./cmd/bot"}).
		WithExec([]string{"upx", "--best", "--lzma", "/src/bin/spamguard"})

	// Config is expected to be mounted at /app/config
	return dag.Container(dagger.ContainerOpts{Platform: buildPlatform}).
		From("gcr.io/distroless/static-debian12:latest").
		WithDirectory("/app/bin", buildCtr.Directory("/src/bin")).
		WithDirectory("/app/logs", buildCtr.Directory("/src/logs")).
		WithDirectory("/app/data", buildCtr.Directory("/src/data")).
		WithFile("/etc/ssl/certs/ca-certificates.crt", buildCtr.File("/etc/ssl/certs/ca-certificates.crt")).
		WithWorkdir("/app").
		WithEntrypoint([]string{"/app/bin/spamguard"}), nil
}

// Publish builds the image for every platform and pushes it as one multi-arch image.
func (m *Spamguard) Publish(
	ctx context.Context,
	// Source code directory
	// +required
	src *dagger.Directory,
	// Docker image name (e.g. "username/spamguard:tag")
	// +required
	imageName string,
	// Platforms to build for (comma-separated, e.g. "linux/amd64,linux/arm64")
	// +optional
	// +default="linux/amd64"
	platforms string,
) (string, error) {
	platformList := []dagger.Platform{"linux/amd64"}
	if platforms != "" {
		platformList = platformList[:0]
		for _, p := range strings.Split(platforms, ",") {
			platformList = append(platformList, dagger.Platform(strings.TrimSpace(p)))
		}
	}

	variants := make([]*dagger.Container, 0, len(platformList))
	for _, platform := range platformList {
		container, err := m.BuildContainer(ctx, src, &platform)
		if err != nil {
			return "", fmt.Errorf("failed to build container for %s: %w", platform, err)
		}
		variants = append(variants, container)
	}

	ref, err := dag.Container().Publish(ctx, imageName, dagger.ContainerPublishOpts{
		PlatformVariants: variants,
	})
	if err != nil {
		return "", fmt.Errorf("failed to publish image: %w", err)
	}

	return ref, nil
}

// Run builds the bot and runs it with the given config directory.
func (m *Spamguard) Run(
	// Source code directory
	// +required
	src *dagger.Directory,
	// Config directory holding common.toml and bot.toml
	// +required
	configDir *dagger.Directory,
	// Subcommand to run, empty to start the bot (e.g. "incidents")
	// +optional
	command string,
) *dagger.Container {
	runCtr := goContainer(src).
		WithDirectory("/etc/spamguard/config", configDir).
		WithExec([]string{"apk", "add", "--no-cache", "ca-certificates"}).
		WithExec([]string{"go", "build", "-o", "/src/bin/spamguard", "./cmd/bot"})

	args := []string{"/src/bin/spamguard"}
	if command != "" {
		args = append(args, command)
	}

	return runCtr.WithExec(args)
}
