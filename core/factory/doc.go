// Package factory instantiates pluggable modules from configuration. A
// module is named by ModuleConfig.Type and configured by the free-form
// ModuleConfig.Conf map, which factories decode with Decode:
//
//	sinks := factory.NewRegistry[metrics.MetricsSink]()
//	_ = sinks.Register("influx", func(conf map[string]any) (metrics.MetricsSink, error) {
//	    var c struct{ URL string `json:"url"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return newInfluxSink(c.URL)
//	})
//	sink, err := sinks.Create(factory.ModuleConfig{Type: "influx", Conf: map[string]any{"url": "http://influx:8086"}})
package factory
