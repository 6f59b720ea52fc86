package cloudtasks

import (
	"context"
	"fmt"
	"os"

	tasksapi "cloud.google.com/go/cloudtasks/apiv2"
	"cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
	"github.com/googleapis/gax-go/v2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"github.com/phrazzld/pushtasks/internal/config"
)

// Client is the subset of the Cloud Tasks API the backend calls.
// *cloudtasks.Client from cloud.google.com/go/cloudtasks/apiv2 implements it.
type Client interface {
	CreateTask(ctx context.Context, req *cloudtaskspb.CreateTaskRequest, opts ...gax.CallOption) (*cloudtaskspb.Task, error)
	Close() error
}

var _ Client = (*tasksapi.Client)(nil)

// credentials resolves transport credentials: explicit JSON, then an
// explicit file, then Application Default Credentials.
func (b *Backend) credentials(ctx context.Context) (*google.Credentials, error) {
	scopes := tasksapi.DefaultAuthScopes()

	switch {
	case b.opts.CredentialsJSON != "":
		creds, err := google.CredentialsFromJSON(ctx, []byte(b.opts.CredentialsJSON), scopes...)
		if err != nil {
			return nil, fmt.Errorf("%w: credentials_json: %v", config.ErrImproperlyConfigured, err)
		}
		return creds, nil
	case b.opts.CredentialsFile != "":
		data, err := os.ReadFile(b.opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("%w: credentials_file: %v", config.ErrImproperlyConfigured, err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, scopes...)
		if err != nil {
			return nil, fmt.Errorf("%w: credentials_file: %v", config.ErrImproperlyConfigured, err)
		}
		return creds, nil
	default:
		creds, err := google.FindDefaultCredentials(ctx, scopes...)
		if err != nil {
			return nil, fmt.Errorf("%w: no credentials configured and none discovered: %v",
				config.ErrImproperlyConfigured, err)
		}
		return creds, nil
	}
}

// Client returns the queue client, creating it on first use.
func (b *Backend) Client(ctx context.Context) (Client, error) {
	b.clientMu.Lock()
	defer b.clientMu.Unlock()

	if b.client != nil {
		return b.client, nil
	}

	creds, err := b.credentials(ctx)
	if err != nil {
		return nil, err
	}

	c, err := b.newClient(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to create cloud tasks client: %w", err)
	}
	b.client = c
	return c, nil
}

// Close releases the queue client, if one was created.
func (b *Backend) Close() error {
	b.clientMu.Lock()
	defer b.clientMu.Unlock()

	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	return err
}

func newAPIClient(ctx context.Context, opts ...option.ClientOption) (Client, error) {
	return tasksapi.NewClient(ctx, opts...)
}
