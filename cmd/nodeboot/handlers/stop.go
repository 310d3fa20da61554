package handlers

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/skyward-cloud/nodeboot/internal/config"
	"github.com/skyward-cloud/nodeboot/internal/platform/cloud"
)

// Stop powers off every instance belonging to the request. Missing or
// already stopped instances are skipped; the first provider error aborts.
func Stop(ctx context.Context, requestPath string) error {
	req, err := config.LoadRequest(requestPath)
	if err != nil {
		return err
	}

	token := os.Getenv("HCLOUD_TOKEN")
	if token == "" {
		return fmt.Errorf("HCLOUD_TOKEN environment variable is required")
	}
	api := cloud.NewHCloudClient(token)

	return stopAll(ctx, api, req)
}

func stopAll(ctx context.Context, api cloud.InstanceAPI, req *config.Request) error {
	for i := 0; i < req.Count; i++ {
		name := req.NodeName(i)
		if err := api.Stop(ctx, name); err != nil {
			return fmt.Errorf("failed to stop %s: %w", name, err)
		}
		log.Printf("Stopped %s", name)
	}
	log.Printf("Request %s powered off (%d nodes)", req.Name, req.Count)
	return nil
}
