// Package metrics exposes gateway activity to Prometheus.
//
//	m := metrics.New()
//	m.RegisterGateway(gw)
//	gw.AddObserver(m)
//	router.Handle("/metrics", m.Handler())
package metrics
