// ════════════════════════════════════════════════════════════════════════════════════════════════
// 📈 SCHEDULER METRICS
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Prometheus Collector
//
// Description:
//   Exposes scheduler and worker counters at scrape time. Nothing is recorded on the
//   realtime path: Collect reads the atomic snapshots the work package already keeps.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"rtwork/control"
	"rtwork/work"
)

const namespace = "rtwork"

// Source is what the collector scrapes. *work.Scheduler satisfies it.
type Source interface {
	Stats() work.SchedulerStats
	WorkerStats() []work.WorkerStats
}

var _ Source = (*work.Scheduler)(nil)

// Collector implements prometheus.Collector over one scheduler.
type Collector struct {
	src Source

	up         *prometheus.Desc
	workers    *prometheus.Desc
	capacity   *prometheus.Desc
	free       *prometheus.Desc
	scheduled  *prometheus.Desc
	rejected   *prometheus.Desc
	dispatched *prometheus.Desc
	unroutable *prometheus.Desc
	discarded  *prometheus.Desc
	wakeups    *prometheus.Desc

	wRequests  *prometheus.Desc
	wRejected  *prometheus.Desc
	wResponses *prometheus.Desc
	wDropped   *prometheus.Desc
	wDelivered *prometheus.Desc
	wPanics    *prometheus.Desc
	wBusy      *prometheus.Desc
}

// NewCollector builds a collector labelled with the scheduler's id and name.
func NewCollector(src Source) *Collector {
	st := src.Stats()
	labels := prometheus.Labels{"scheduler": st.Name, "instance_id": st.ID}

	desc := func(name, help string, variable ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, variable, labels)
	}
	worker := []string{"worker"}

	return &Collector{
		src: src,

		up:         desc("scheduler_running", "1 while the background thread is running."),
		workers:    desc("scheduler_workers", "Registered workers."),
		capacity:   desc("request_channel_capacity_bytes", "Request channel capacity."),
		free:       desc("request_channel_free_bytes", "Request channel free space at scrape time."),
		scheduled:  desc("requests_scheduled_total", "Requests accepted into the request channel."),
		rejected:   desc("requests_rejected_total", "Requests refused for lack of channel space."),
		dispatched: desc("requests_dispatched_total", "Requests handed to a worker."),
		unroutable: desc("requests_unroutable_total", "Requests whose worker was no longer registered."),
		discarded:  desc("requests_discarded_total", "Requests dropped at shutdown."),
		wakeups:    desc("scheduler_wakeups_total", "Background thread wakeups."),

		wRequests:  desc("worker_requests_total", "Requests processed by the worker.", worker...),
		wRejected:  desc("worker_schedule_rejected_total", "ScheduleWork calls refused.", worker...),
		wResponses: desc("worker_responses_total", "Responses queued by the worker.", worker...),
		wDropped:   desc("worker_responses_dropped_total", "Responses dropped on a full response channel.", worker...),
		wDelivered: desc("worker_responses_delivered_total", "Responses delivered on the realtime thread.", worker...),
		wPanics:    desc("worker_panics_total", "Recovered panics in ProcessRequest.", worker...),
		wBusy:      desc("worker_busy", "1 while a request is outstanding.", worker...),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.up, c.workers, c.capacity, c.free, c.scheduled, c.rejected, c.dispatched,
		c.unroutable, c.discarded, c.wakeups,
		c.wRequests, c.wRejected, c.wResponses, c.wDropped, c.wDelivered, c.wPanics, c.wBusy,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Stats()

	running := 0.0
	if st.State == control.Running.String() {
		running = 1
	}
	gauge := func(d *prometheus.Desc, v float64, lv ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, lv...)
	}
	counter := func(d *prometheus.Desc, v uint64, lv ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), lv...)
	}

	gauge(c.up, running)
	gauge(c.workers, float64(st.Workers))
	gauge(c.capacity, float64(st.Capacity))
	gauge(c.free, float64(st.Free))
	counter(c.scheduled, st.Scheduled)
	counter(c.rejected, st.Rejected)
	counter(c.dispatched, st.Dispatched)
	counter(c.unroutable, st.Unroutable)
	counter(c.discarded, st.Discarded)
	counter(c.wakeups, st.Wakeups)

	for _, w := range c.src.WorkerStats() {
		id := strconv.FormatUint(uint64(w.ID), 10)
		busy := 0.0
		if w.Busy {
			busy = 1
		}
		counter(c.wRequests, w.Requests, id)
		counter(c.wRejected, w.Rejected, id)
		counter(c.wResponses, w.Responses, id)
		counter(c.wDropped, w.ResponsesDropped, id)
		counter(c.wDelivered, w.Delivered, id)
		counter(c.wPanics, w.Panics, id)
		gauge(c.wBusy, busy, id)
	}
}
