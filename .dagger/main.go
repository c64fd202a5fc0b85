// Obrew CI/CD
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
// It is the main harness for handling nearly all dev operations.
package main

import (
	"context"

	"dagger/obrew/internal/dagger"
)

// Obrew is the main module for the Obrew CI/CD pipeline
type Obrew struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new Obrew CI/CD module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", ".direnv", ".devenv", "build", "tmp"]
	source *dagger.Directory,
) *Obrew {
	return &Obrew{
		Source: source,
	}
}

// goContainer returns a Debian Bookworm-based Go container with the Go
// caches mounted and the project source at /src.
//
// It is the shared foundation for tests, builds, and linting.
func (o *Obrew) goContainer() *dagger.Container {
	return dag.Container().
		From("golang:1.25-bookworm").
		WithEnvVariable("CGO_ENABLED", "0").
		WithEnvVariable("PATH", "/go/bin:$PATH", dagger.ContainerWithEnvVariableOpts{Expand: true}).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build")).
		WithWorkdir("/src").
		WithDirectory("/src", o.Source)
}

// Test runs the obrew unit tests via "go test"
func (o *Obrew) Test(ctx context.Context) (string, error) {
	return o.goContainer().
		WithExec([]string{"go", "test", "-v", "./..."}).
		Stdout(ctx)
}
