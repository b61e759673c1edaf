package leader_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/k3s"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/jensholdgaard/gachabot/internal/config"
	"github.com/jensholdgaard/gachabot/internal/leader"
)

// leaders records which replicas are running their leader work.
type leaders struct {
	mu      sync.Mutex
	active  map[string]bool
	overlap bool
	history []string
}

func (l *leaders) work(id string) func(ctx context.Context) {
	return func(ctx context.Context) {
		l.mu.Lock()
		if len(l.active) > 0 {
			l.overlap = true
		}
		l.active[id] = true
		l.history = append(l.history, id)
		l.mu.Unlock()

		<-ctx.Done()

		l.mu.Lock()
		delete(l.active, id)
		l.mu.Unlock()
	}
}

func (l *leaders) current() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id := range l.active {
		return id, true
	}
	return "", false
}

func waitForLeader(t *testing.T, l *leaders, not string) string {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		if id, ok := l.current(); ok && id != not {
			return id
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatal("timed out waiting for a leader")
	return ""
}

// TestLead_K3sFailover runs two replicas against a real Lease in k3s: only
// one leads at a time, and the other takes over once the leader shuts down.
// Skipped in short mode.
func TestLead_K3sFailover(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping k3s integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctr, err := k3s.Run(ctx, "rancher/k3s:v1.31.6-k3s1")
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("starting k3s container: %v", err)
	}
	kubeConfig, err := ctr.GetKubeConfig(ctx)
	if err != nil {
		t.Fatalf("getting kubeconfig: %v", err)
	}
	restCfg, err := clientcmd.RESTConfigFromKubeConfig(kubeConfig)
	if err != nil {
		t.Fatalf("building rest config: %v", err)
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		t.Fatalf("creating kubernetes client: %v", err)
	}

	origFactory := leader.ClientFactory
	leader.ClientFactory = func() (kubernetes.Interface, error) { return clientset, nil }
	t.Cleanup(func() { leader.ClientFactory = origFactory })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := &leaders{active: map[string]bool{}}

	type replica struct {
		cancel context.CancelFunc
		done   chan error
	}
	replicas := map[string]*replica{}
	for _, id := range []string{"replica-a", "replica-b"} {
		cfg := config.LeaderElectionConfig{
			Enabled:        true,
			LeaseName:      "gachabot-test-leader",
			LeaseNamespace: "default",
			LeaseDuration:  5 * time.Second,
			RenewDeadline:  3 * time.Second,
			RetryPeriod:    time.Second,
			Identity:       id,
		}
		rctx, rcancel := context.WithCancel(ctx)
		r := &replica{cancel: rcancel, done: make(chan error, 1)}
		replicas[id] = r
		go func() { r.done <- leader.Lead(rctx, cfg, logger, l.work(cfg.Identity)) }()
	}
	t.Cleanup(func() {
		for _, r := range replicas {
			r.cancel()
		}
	})

	first := waitForLeader(t, l, "")
	time.Sleep(3 * time.Second)

	replicas[first].cancel()
	select {
	case err := <-replicas[first].done:
		if err != nil {
			t.Fatalf("Lead(%s) error = %v", first, err)
		}
	case <-time.After(15 * time.Second):
		t.Fatalf("Lead(%s) did not return after cancel", first)
	}

	second := waitForLeader(t, l, first)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.overlap {
		t.Errorf("two replicas led at once; history = %v", l.history)
	}
	if second == first || len(l.history) != 2 {
		t.Errorf("history = %v, want one hand-over from %s", l.history, first)
	}
}
