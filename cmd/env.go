package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/klimatdata/disclosure-pipeline/internal/extract"
	"github.com/klimatdata/disclosure-pipeline/internal/jobs"
	"github.com/klimatdata/disclosure-pipeline/internal/queue"
	"github.com/klimatdata/disclosure-pipeline/internal/registry"
	"github.com/klimatdata/disclosure-pipeline/internal/resolve"
	"github.com/klimatdata/disclosure-pipeline/internal/store"
	"github.com/klimatdata/disclosure-pipeline/pkg/anthropic"
	"github.com/klimatdata/disclosure-pipeline/pkg/discord"
	"github.com/klimatdata/disclosure-pipeline/pkg/portal"
	"github.com/klimatdata/disclosure-pipeline/pkg/wikidata"
)

func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initBroker() (*queue.RabbitBroker, *queue.Client, error) {
	broker, err := queue.NewRabbitBroker(queue.RabbitConfig{
		URL:           cfg.Queue.URL,
		Exchange:      cfg.Queue.Exchange,
		PrefetchCount: cfg.Queue.PrefetchCount,
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "connect broker")
	}
	return broker, queue.NewClient(broker, cfg.Queue.QueuePrefix), nil
}

func initPipeline(client *queue.Client, st store.Store) (*jobs.Pipeline, error) {
	reg, err := registry.Load(cfg.Registry.Path)
	if err != nil {
		return nil, eris.Wrap(err, "load registry")
	}

	extractor := extract.New(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic)
	resolver := resolve.New(
		wikidata.NewClient(
			wikidata.WithBaseURL(cfg.Wikidata.BaseURL),
			wikidata.WithUserAgent(cfg.Wikidata.UserAgent),
		),
		extractor,
		cfg.Wikidata.MaxCandidates,
	)
	portalClient := portal.NewClient(cfg.Portal.BaseURL, cfg.Portal.Token)

	return jobs.New(client, resolver, extractor, portalClient, reg, st), nil
}

func initNotifier() *discord.Sender {
	return discord.NewSender(cfg.Review.WebhookURL)
}
