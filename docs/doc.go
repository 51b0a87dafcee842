// Package docs provides the OpenAPI documentation served at /swagger.json.
//
// Storyboard API
//
//	@title			Storyboard API
//	@version		1.0
//	@description	Reference resolution and dependency-ordered asset generation for shots and entities.
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/storyboard
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g ../cmd/storyboard/serve.go -o . --outputTypes go --parseDependency --parseInternal
