package main

import (
	"context"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/czerwonk/pingwatch/target"
)

func tsDiscover(ctx context.Context, tailnet string) ([]string, error) {
	hosts, err := target.DiscoverTailnet(ctx, tailnet, os.Getenv("TS_API_KEY"))
	if err != nil {
		return nil, err
	}

	log.Infof("Discovered %d device(s) in tailnet %s", len(hosts), tailnet)
	return hosts, nil
}
