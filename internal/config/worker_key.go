package config

type WorkerKeyStruct struct {
	PersistTelemetryQueue string
	WatchHeartbeatQueue   string
}

var WorkerKey = &WorkerKeyStruct{
	PersistTelemetryQueue: "persist_telemetry_queue",
	WatchHeartbeatQueue:   "watch_heartbeat_queue",
}
