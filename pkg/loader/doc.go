// Package loader dispatches to one implementation per server type: how to
// list available versions from its upstream, and how to turn a chosen
// version into a runnable server binary inside an instance directory.
// Resolution results flow through pkg/cache; every download flows through
// pkg/download, and every downloaded JAR is verified with requireValidJar
// before being handed back to the caller. Bedrock's ZIP archive is
// extracted without that check.
package loader
