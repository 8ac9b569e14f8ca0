// Package mqtt publishes regsync events to an MQTT broker.
//
// Each instance publishes under regsync/{site}/:
//
//	regsync/{site}/status                       online/offline (retained, LWT)
//	regsync/{site}/register/{bank}/{addr}       last confirmed value (retained)
//	regsync/{site}/sync/operation               every mirror operation outcome
//	regsync/{site}/sync/connectivity            Secondary connectivity (retained)
//	regsync/{site}/preset/applied               preset application summaries
//
// Publishing is one-way: regsync never takes commands over MQTT, so a broker
// outage only loses telemetry. The connection reconnects automatically with
// backoff and the broker announces an unexpected disconnect through the
// Last Will.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Site.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.PublishEvent(client.Topics().SyncOperation(), op, false)
package mqtt
