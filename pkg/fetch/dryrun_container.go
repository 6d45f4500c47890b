package fetch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/antigravity-dev/specsheet/pkg/model"
)

// ContainerFetcher is DryRunFetcher's sandboxed sibling: instead of
// returning fixtures from memory, it launches a disposable nginx
// container that actually serves the fixture pages over HTTP, so a test
// can exercise HTTPFetcher's real request/response path (headers,
// status codes, redirects) without reaching the live internet. Grounded
// on the teacher's DockerDispatcher — NewClientWithOpts, the bind-mount
// context directory, and ContainerCreate/Start/Remove — adapted from a
// long-lived agent sandbox to a throwaway fixture server.
type ContainerFetcher struct {
	cli       *client.Client
	inner     *HTTPFetcher
	container string
	hostDir   string
	baseURL   string
}

const containerFetcherImage = "nginx:alpine"

// NewContainerFetcher starts a container serving fixtures (full source
// URL -> response body, e.g. "https://maker.example/product.html":
// "<html>...") and returns a
// Fetcher backed by it. The caller must call Close when done to remove
// the container and its temp context directory.
func NewContainerFetcher(ctx context.Context, fixtures map[string]string) (*ContainerFetcher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("fetch: docker client: %w", err)
	}

	hostDir, err := os.MkdirTemp("", "specsheet-fixtures-")
	if err != nil {
		return nil, fmt.Errorf("fetch: fixture dir: %w", err)
	}
	for path, body := range fixtures {
		dest := filepath.Join(hostDir, fixtureFileName(path))
		if err := os.WriteFile(dest, []byte(body), 0o644); err != nil {
			os.RemoveAll(hostDir)
			return nil, fmt.Errorf("fetch: writing fixture %s: %w", path, err)
		}
	}

	containerConfig := &container.Config{
		Image:        containerFetcherImage,
		ExposedPorts: nat.PortSet{"80/tcp": struct{}{}},
	}
	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: hostDir, Target: "/usr/share/nginx/html", ReadOnly: true},
		},
		PortBindings: nat.PortMap{
			"80/tcp": []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: "0"}},
		},
		AutoRemove: false,
	}

	name := fmt.Sprintf("specsheet-fixture-%d", time.Now().UnixNano())
	resp, err := cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		os.RemoveAll(hostDir)
		return nil, fmt.Errorf("fetch: create container: %w", err)
	}
	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		os.RemoveAll(hostDir)
		return nil, fmt.Errorf("fetch: start container: %w", err)
	}

	inspect, err := cli.ContainerInspect(ctx, resp.ID)
	if err != nil {
		os.RemoveAll(hostDir)
		return nil, fmt.Errorf("fetch: inspect container: %w", err)
	}
	bindings, ok := inspect.NetworkSettings.Ports["80/tcp"]
	if !ok || len(bindings) == 0 {
		os.RemoveAll(hostDir)
		return nil, fmt.Errorf("fetch: container %s published no port for 80/tcp", resp.ID)
	}

	return &ContainerFetcher{
		cli:       cli,
		inner:     NewHTTPFetcher("specsheet-sandbox/1.0"),
		container: resp.ID,
		hostDir:   hostDir,
		baseURL:   fmt.Sprintf("http://%s:%s", bindings[0].HostIP, bindings[0].HostPort),
	}, nil
}

// Fetch maps the full src.URL to the fixture file the container serves it
// under and performs a real HTTP GET against the running container.
func (f *ContainerFetcher) Fetch(ctx context.Context, src model.Source, timeout time.Duration) (model.PageData, error) {
	routed := src
	routed.URL = f.baseURL + "/" + fixtureFileName(src.URL)
	page, err := f.inner.Fetch(ctx, routed, timeout)
	if err != nil {
		return model.PageData{}, err
	}
	page.FinalURL = src.URL
	return page, nil
}

// Close stops and removes the container and cleans up its fixture
// directory.
func (f *ContainerFetcher) Close(ctx context.Context) error {
	err := f.cli.ContainerRemove(ctx, f.container, container.RemoveOptions{Force: true, RemoveVolumes: true})
	os.RemoveAll(f.hostDir)
	return err
}

// Logs returns the container's combined stdout/stderr, useful when a
// sandboxed fetch behaves unexpectedly in a test.
func (f *ContainerFetcher) Logs(ctx context.Context) (string, error) {
	out, err := f.cli.ContainerLogs(ctx, f.container, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", err
	}
	defer out.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, out); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func fixtureFileName(urlPath string) string {
	sum := sha256.Sum256([]byte(urlPath))
	return hex.EncodeToString(sum[:]) + ".html"
}

var _ Fetcher = (*ContainerFetcher)(nil)
