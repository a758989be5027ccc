package console

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kbukum/svckit/module"
	"github.com/kbukum/svckit/registry"
)

// registryCollector exposes registry and module state at scrape time.
type registryCollector struct {
	reg     *registry.Registry
	modules ModuleLister

	services   *prometheus.Desc
	listeners  *prometheus.Desc
	events     *prometheus.Desc
	byIface    *prometheus.Desc
	moduleDesc *prometheus.Desc
}

func newRegistryCollector(reg *registry.Registry, modules ModuleLister) *registryCollector {
	return &registryCollector{
		reg:     reg,
		modules: modules,
		services: prometheus.NewDesc("svckit_registry_services",
			"Services currently registered.", nil, nil),
		listeners: prometheus.NewDesc("svckit_registry_listeners",
			"Service listeners currently registered.", nil, nil),
		events: prometheus.NewDesc("svckit_registry_events_dispatched_total",
			"Service events delivered to listeners.", nil, nil),
		byIface: prometheus.NewDesc("svckit_registry_interface_services",
			"Services registered per interface name.", []string{"interface"}, nil),
		moduleDesc: prometheus.NewDesc("svckit_module_services",
			"Services owned by each installed module.", []string{"module", "state"}, nil),
	}
}

func (c *registryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.services
	ch <- c.listeners
	ch <- c.events
	ch <- c.byIface
	ch <- c.moduleDesc
}

func (c *registryCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.reg.Stats()
	ch <- prometheus.MustNewConstMetric(c.services, prometheus.GaugeValue, float64(s.Services))
	ch <- prometheus.MustNewConstMetric(c.listeners, prometheus.GaugeValue, float64(s.Listeners))
	ch <- prometheus.MustNewConstMetric(c.events, prometheus.CounterValue, float64(s.EventsDispatched))

	counts := make(map[string]int)
	for _, ref := range c.reg.GetServiceReferences("", nil) {
		for _, iface := range ref.Interfaces() {
			counts[iface]++
		}
	}
	for iface, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.byIface, prometheus.GaugeValue, float64(n), iface)
	}

	if c.modules == nil {
		return
	}
	for _, info := range c.modules.List() {
		ch <- prometheus.MustNewConstMetric(c.moduleDesc, prometheus.GaugeValue,
			float64(info.Services), info.Name, info.State.String())
	}
}

var _ ModuleLister = (*module.Manager)(nil)
