// Short-lived cache of message content, keyed by namespace and key.
//
// The Discord consumer stores a renderable line for each message it hands to the engine, so a removal report can describe messages which were already deleted, or which the bot can no longer read. Entries expire on a fixed TTL; a miss is not an error.
//
// There are in-process (expirable LRU), redis-backed, and memcached implementations.
package cachestore
