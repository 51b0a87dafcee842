package endpoints

import (
	"github.com/jackzampolin/storyboard/internal/api"
	"github.com/jackzampolin/storyboard/internal/defra"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	DefraManager *defra.DockerManager // nil unless the defra backend is in use
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{DefraManager: cfg.DefraManager},

		// Target endpoints
		&GetTargetEndpoint{},
		&UpdateTargetEndpoint{},
		&ResolveReferencesEndpoint{},
		&AddReferenceEndpoint{},
		&RemoveReferenceEndpoint{},
		&ClearTombstonesEndpoint{},

		// Generation endpoints
		&GenerateTargetEndpoint{},
		&GenerateEntitiesEndpoint{},
		&GenerateShotsEndpoint{},

		// Project endpoints
		&ListProjectsEndpoint{},
		&ImportBundleEndpoint{},
		&ListEntitiesEndpoint{},
		&ListShotsEndpoint{},
		&InjectEndpoint{},
		&ExportStoryboardEndpoint{},

		// Job endpoints
		&ListJobsEndpoint{},
		&GetJobEndpoint{},
		&CancelJobEndpoint{},

		// Files and docs
		&AssetEndpoint{},
		&SwaggerEndpoint{},
		&SwaggerUIEndpoint{},
	}
}

// TargetCommands returns endpoints grouped under "targets".
func TargetCommands() []api.Endpoint {
	return []api.Endpoint{
		&GetTargetEndpoint{},
		&UpdateTargetEndpoint{},
		&ResolveReferencesEndpoint{},
		&AddReferenceEndpoint{},
		&RemoveReferenceEndpoint{},
		&ClearTombstonesEndpoint{},
	}
}

// GenerateCommands returns endpoints grouped under "generate".
func GenerateCommands() []api.Endpoint {
	return []api.Endpoint{
		&GenerateTargetEndpoint{},
		&GenerateEntitiesEndpoint{},
		&GenerateShotsEndpoint{},
	}
}

// ProjectCommands returns endpoints grouped under "projects".
func ProjectCommands() []api.Endpoint {
	return []api.Endpoint{
		&ListProjectsEndpoint{},
		&ImportBundleEndpoint{},
		&ListEntitiesEndpoint{},
		&ListShotsEndpoint{},
		&InjectEndpoint{},
		&ExportStoryboardEndpoint{},
	}
}

// JobCommands returns endpoints grouped under "jobs".
func JobCommands() []api.Endpoint {
	return []api.Endpoint{
		&ListJobsEndpoint{},
		&GetJobEndpoint{},
		&CancelJobEndpoint{},
	}
}
