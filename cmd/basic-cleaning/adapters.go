package main

import (
	"context"

	"github.com/animus-labs/basic-cleaning/internal/artifacts"
	"github.com/animus-labs/basic-cleaning/internal/domain"
)

type artifactResolver struct {
	client *artifacts.Client
}

func (r artifactResolver) Resolve(ctx context.Context, qualifiedName string) (string, error) {
	resolved, err := r.client.Resolve(ctx, qualifiedName)
	if err != nil {
		return "", err
	}
	return resolved.Path, nil
}

type artifactPublisher struct {
	client *artifacts.Client
}

func (p artifactPublisher) Publish(ctx context.Context, name, kind, description, path string) (domain.ArtifactVersion, error) {
	return p.client.Publish(ctx, artifacts.PublishInput{
		Name:        name,
		Type:        kind,
		Description: description,
		Path:        path,
	})
}
