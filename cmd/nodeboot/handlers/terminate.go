package handlers

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/skyward-cloud/nodeboot/internal/config"
	"github.com/skyward-cloud/nodeboot/internal/platform/cloud"
)

// Terminate deletes every instance belonging to the request. Instances
// that no longer exist are skipped; the first provider error aborts.
func Terminate(ctx context.Context, requestPath string) error {
	req, err := config.LoadRequest(requestPath)
	if err != nil {
		return err
	}

	token := os.Getenv("HCLOUD_TOKEN")
	if token == "" {
		return fmt.Errorf("HCLOUD_TOKEN environment variable is required")
	}
	api := cloud.NewHCloudClient(token)

	return terminateAll(ctx, api, req)
}

func terminateAll(ctx context.Context, api cloud.InstanceAPI, req *config.Request) error {
	for i := 0; i < req.Count; i++ {
		name := req.NodeName(i)
		if err := api.Terminate(ctx, name); err != nil {
			return fmt.Errorf("failed to terminate %s: %w", name, err)
		}
		log.Printf("Terminated %s", name)
	}
	log.Printf("Request %s torn down (%d nodes)", req.Name, req.Count)
	return nil
}
