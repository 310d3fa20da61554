package handlers

import (
	"fmt"

	"github.com/skyward-cloud/nodeboot/internal/config"
)

// Validate parses and validates a request file without provider access.
func Validate(requestPath string) error {
	req, err := config.LoadRequest(requestPath)
	if err != nil {
		return err
	}
	fmt.Printf("Request %s is valid: %d node(s), head %s, type %s in %s\n",
		req.Name, req.Count, req.NodeName(0), req.ServerType, req.Location)
	return nil
}
