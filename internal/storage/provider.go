package storage

import "upscaled/internal/ports"

// Provider is the blob store shared by the API and the worker.
type Provider = ports.StorageProvider
