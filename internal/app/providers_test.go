package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/laith/internal/app"
	"github.com/MrWong99/laith/internal/config"
	"github.com/MrWong99/laith/internal/observe"
	"github.com/MrWong99/laith/internal/resilience"
	"github.com/MrWong99/laith/pkg/provider/llm"
	llmmock "github.com/MrWong99/laith/pkg/provider/llm/mock"
	"github.com/MrWong99/laith/pkg/provider/media"
	mediamock "github.com/MrWong99/laith/pkg/provider/media/mock"
)

// recordingRegistry registers mock factories and remembers the entries they
// were built from.
type recordingRegistry struct {
	*config.Registry
	mu      sync.Mutex
	entries map[string]config.ProviderEntry
	chat    map[string]*llmmock.Provider
}

func newRecordingRegistry() *recordingRegistry {
	r := &recordingRegistry{
		Registry: config.NewRegistry(),
		entries:  make(map[string]config.ProviderEntry),
		chat:     make(map[string]*llmmock.Provider),
	}
	for _, name := range []string{"primary", "backup"} {
		p := &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: name}}}
		r.chat[name] = p
		r.RegisterChat(name, func(_ context.Context, e config.ProviderEntry) (llm.Provider, error) {
			r.record("chat/"+e.Name, e)
			return p, nil
		})
	}
	r.RegisterChat("broken", func(context.Context, config.ProviderEntry) (llm.Provider, error) {
		return nil, errors.New("bad credentials")
	})
	r.RegisterImage("primary", func(_ context.Context, e config.ProviderEntry) (media.ImageProvider, error) {
		r.record("image/"+e.Name, e)
		return &mediamock.ImageProvider{Image: &media.Image{Data: []byte("img")}}, nil
	})
	r.RegisterVideo("primary", func(_ context.Context, e config.ProviderEntry) (media.VideoProvider, error) {
		r.record("video/"+e.Name, e)
		return &mediamock.VideoProvider{}, nil
	})
	return r
}

func (r *recordingRegistry) record(key string, e config.ProviderEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = e
}

func providersConfig() *config.Config {
	cfg := config.Default()
	cfg.Providers = config.ProvidersConfig{
		Chat:          config.ProviderEntry{Name: "primary", APIKey: "k1", Model: "m1"},
		ChatFallbacks: []config.ProviderEntry{{Name: "broken"}, {Name: "backup", APIKey: "k2"}},
		Image:         config.ProviderEntry{Name: "primary", APIKey: "k1"},
		Video:         config.ProviderEntry{Name: "primary", APIKey: "k1"},
		Live:          config.ProviderEntry{Name: "unregistered"},
	}
	return cfg
}

func TestBuildProviders_WiresEveryCapability(t *testing.T) {
	t.Parallel()
	reg := newRecordingRegistry()
	ps, err := app.BuildProviders(context.Background(), providersConfig(), reg.Registry)
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	if ps.Chat == nil || ps.ChatName != "primary" || ps.ChatHealthy == nil || !ps.ChatHealthy() {
		t.Errorf("chat = %+v", ps)
	}
	if ps.Images == nil || ps.ImageHealthy == nil || ps.Videos == nil {
		t.Errorf("media providers missing: %+v", ps)
	}
	if ps.Live != nil {
		t.Error("unregistered live provider should be left nil")
	}
	if e := reg.entries["chat/primary"]; e.Model != "m1" || e.APIKey != "k1" {
		t.Errorf("primary entry = %+v", e)
	}
}

func TestBuildProviders_ChatFailsOverToBackup(t *testing.T) {
	t.Parallel()
	reg := newRecordingRegistry()
	reg.chat["primary"].StreamErr = errors.New("primary down")

	ps, err := app.BuildProviders(context.Background(), providersConfig(), reg.Registry)
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	resp, err := llm.Collect(context.Background(), mustStream(t, ps.Chat))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if resp.Content != "backup" {
		t.Errorf("content = %q, want the backup's answer", resp.Content)
	}
}

func mustStream(t *testing.T, p llm.Provider) <-chan llm.Chunk {
	t.Helper()
	ch, err := p.StreamCompletion(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	return ch
}

func TestBuildProviders_PrimaryErrors(t *testing.T) {
	t.Parallel()
	reg := newRecordingRegistry()

	cfg := providersConfig()
	cfg.Providers.Chat = config.ProviderEntry{Name: "broken"}
	if _, err := app.BuildProviders(context.Background(), cfg, reg.Registry); err == nil {
		t.Error("expected error for failing chat primary")
	}

	cfg = providersConfig()
	cfg.Providers.Chat = config.ProviderEntry{Name: "missing"}
	if _, err := app.BuildProviders(context.Background(), cfg, reg.Registry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestBuildProviders_ResolvesKeyFromEnvironment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	reg := newRecordingRegistry()
	reg.RegisterChat("openai", func(_ context.Context, e config.ProviderEntry) (llm.Provider, error) {
		reg.record("chat/openai", e)
		return &llmmock.Provider{}, nil
	})

	cfg := providersConfig()
	cfg.Providers.Chat = config.ProviderEntry{Name: "openai"}
	if _, err := app.BuildProviders(context.Background(), cfg, reg.Registry); err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	if got := reg.entries["chat/openai"].APIKey; got != "sk-from-env" {
		t.Errorf("APIKey = %q, want value from OPENAI_API_KEY", got)
	}
}

func TestBuildProviders_CountsBreakerTransitions(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatal(err)
	}
	reg := newRecordingRegistry()
	reg.chat["primary"].StreamErr = errors.New("primary down")

	ps, err := app.BuildProviders(context.Background(), providersConfig(), reg.Registry, app.WithProviderMetrics(m))
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	for range resilience.DefaultMaxFailures {
		if _, err := llm.Collect(context.Background(), mustStream(t, ps.Chat)); err != nil {
			t.Fatalf("Collect: %v", err)
		}
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	var opened int64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "laith.provider.breaker_transitions" {
				continue
			}
			for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
				p, _ := dp.Attributes.Value("provider")
				s, _ := dp.Attributes.Value("state")
				k, _ := dp.Attributes.Value("kind")
				if p.AsString() == "primary" && s.AsString() == "open" && k.AsString() == "chat" {
					opened += dp.Value
				}
			}
		}
	}
	if opened != 1 {
		t.Errorf("primary open transitions = %d, want 1", opened)
	}
}
