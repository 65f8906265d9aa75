package config

import (
	"fmt"
	"strings"
	"time"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// NormalizeAndValidate returns a normalized copy of cfg plus every problem found.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	out := cfg
	var res Validation

	out.Normalize.Gazetteer = trimList(out.Normalize.Gazetteer)
	out.App.Currency = strings.ToUpper(strings.TrimSpace(out.App.Currency))
	out.App.SiteURL = strings.TrimRight(strings.TrimSpace(out.App.SiteURL), "/")
	out.Notify.Driver = strings.ToLower(strings.TrimSpace(out.Notify.Driver))
	out.Dispatch.TokenBackend = strings.ToLower(strings.TrimSpace(out.Dispatch.TokenBackend))

	if out.App.Port <= 0 || out.App.Port > 65535 {
		res.addErr("app.port must be 1..65535")
	}
	if out.App.Currency == "" {
		res.addErr("app.currency is required")
	}
	if len(out.Normalize.Gazetteer) == 0 {
		res.addWarn("normalize.gazetteer is empty; city extraction will fall back to raw location text.")
	}

	positive := func(name string, d time.Duration) {
		if d <= 0 {
			res.addErr("%s must be > 0", name)
		}
	}
	positive("scheduler.tick", out.Scheduler.Tick)
	positive("scheduler.default_source_interval", out.Scheduler.DefaultSourceInterval)
	positive("scheduler.alerts_interval", out.Scheduler.AlertsInterval)
	positive("scheduler.contracts_interval", out.Scheduler.ContractsInterval)
	positive("scheduler.stats_interval", out.Scheduler.StatsInterval)
	positive("scheduler.stale_run_after", out.Scheduler.StaleRunAfter)
	positive("fetch.timeout", out.Fetch.Timeout)
	positive("alerts.window", out.Alerts.Window)

	if out.Scheduler.Tick > 0 && out.Scheduler.Tick < 5*time.Second {
		res.addWarn("scheduler.tick is very low (%s); the registry will be polled constantly.", out.Scheduler.Tick)
	}
	if out.Scheduler.StaleRunAfter > 0 && out.Scheduler.StaleRunAfter <= out.Fetch.Timeout {
		res.addWarn("scheduler.stale_run_after (%s) should exceed fetch.timeout (%s).",
			out.Scheduler.StaleRunAfter, out.Fetch.Timeout)
	}

	if out.Dispatch.PoolSize < 1 {
		res.addErr("dispatch.pool_size must be >= 1")
	}
	if out.Dispatch.QueueSize < 1 {
		res.addErr("dispatch.queue_size must be >= 1")
	}
	if out.Dispatch.GeocodePoolSize < 1 {
		res.addErr("dispatch.geocode_pool_size must be >= 1")
	}
	if out.Dispatch.GeocodeQueueSize < 1 {
		res.addErr("dispatch.geocode_queue_size must be >= 1")
	}
	switch out.Dispatch.TokenBackend {
	case "memory":
	case "redis":
		if strings.TrimSpace(out.Redis.Addr) == "" {
			res.addErr("redis.addr is required when dispatch.token_backend=redis")
		}
	default:
		res.addErr("dispatch.token_backend must be memory or redis, got %q", out.Dispatch.TokenBackend)
	}

	if out.Alerts.Cap < 1 {
		res.addErr("alerts.cap must be >= 1")
	}
	if out.Alerts.Workers < 1 {
		out.Alerts.Workers = 1
	}

	switch out.Notify.Driver {
	case "log":
	case "ses":
		if strings.TrimSpace(out.Notify.Region) == "" {
			res.addErr("notify.region is required when notify.driver=ses")
		}
		if strings.TrimSpace(out.Notify.From) == "" {
			res.addErr("notify.from is required when notify.driver=ses")
		}
	default:
		res.addErr("notify.driver must be log or ses, got %q", out.Notify.Driver)
	}

	if out.Geocode.Enabled && strings.TrimSpace(out.Geocode.BaseURL) == "" {
		res.addErr("geocode.base_url is required when geocode.enabled=true")
	}

	return out, res
}

func trimList(xs []string) []string {
	seen := map[string]bool{}
	var ys []string
	for _, x := range xs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		key := strings.ToLower(x)
		if seen[key] {
			continue
		}
		seen[key] = true
		ys = append(ys, x)
	}
	return ys
}
