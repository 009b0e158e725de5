package main

import (
	"context"
	"fmt"
	"time"

	"github.com/vitalchain-project/backend/internal/config"
	"github.com/vitalchain-project/backend/internal/integrations/okx"
	"github.com/vitalchain-project/backend/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	client := okx.NewClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := client.CheckAuth(ctx); err != nil {
		logger.Fatal("OKX auth check failed: %v", err)
	}

	fmt.Printf("OKX auth check succeeded against %s%s (request accepted past authentication).\n", cfg.OKX.BaseURL, cfg.OKX.VerifyPath)
}
