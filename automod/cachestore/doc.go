// Automod component for caching resolved Discord data (users, member role lists) as JSON strings, with a fixed TTL and purging.
//
// Includes an interface and implementations using redis and in-process memory.
//
// Context builders use this to avoid a REST lookup for every gateway event from the same user.
package cachestore
