package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"tap-bigmarker/lib/bigmarker"
	"tap-bigmarker/lib/bookmarkstore"
	"tap-bigmarker/lib/configutil"
	"tap-bigmarker/lib/restyutil"
	"tap-bigmarker/lib/serviceutil"
	"tap-bigmarker/lib/singer"
	"tap-bigmarker/lib/telemetry"
	"tap-bigmarker/tap"
)

func runSync(ctx context.Context) {
	cfg, err := configutil.ReadConfig[tap.Config](configPath)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if err := cfg.Validate(); err != nil {
		serviceutil.Fatal("invalid config", err)
	}

	if httpDumpDir != "" {
		bigmarker.SetRestyInstrumentOutput(restyutil.NewFilesystemOutput(httpDumpDir))
	}

	client, err := bigmarker.NewClient(bigmarker.ClientOptions{
		BaseUrl:           cfg.ApiUrl,
		ApiKey:            cfg.ApiKey,
		UserAgent:         cfg.UserAgent,
		PageSize:          cfg.PageSize,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	if err != nil {
		serviceutil.Fatal("failed to initialize client", err)
	}

	tp := tap.New(client, singer.NewWriter(os.Stdout))

	if catalogPath != "" {
		tp.Catalog, err = singer.ReadCatalog(catalogPath)
		if err != nil {
			serviceutil.Fatal("failed to read catalog", err)
		}
	}

	switch {
	case statePath != "":
		tp.State, err = singer.ReadState(statePath)
		if err != nil {
			serviceutil.Fatal("failed to read state", err)
		}
	case stateDbPath != "":
		store, err := bookmarkstore.Open(stateDbPath)
		if err != nil {
			serviceutil.Fatal("failed to open state db", err)
		}
		defer store.Close()

		tp.State, err = store.Load(ctx)
		if err != nil {
			serviceutil.Fatal("failed to load bookmarks", err)
		}
		tp.OnStateFlush = func(state singer.State) error {
			return store.Save(ctx, state)
		}
	}

	if tel.Enabled() {
		telemetry.InstrumentPerfStats(ctx)
	}

	if err := tp.Sync(ctx); err != nil {
		serviceutil.Fatal("sync failed", err)
	}
}

func runDiscover() {
	catalog, err := tap.Discover()
	if err != nil {
		serviceutil.Fatal("discovery failed", err)
	}
	out, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		serviceutil.Fatal("failed to render catalog", err)
	}
	fmt.Println(string(out))
}
