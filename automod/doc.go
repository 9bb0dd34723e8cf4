// Real-time chat moderation for a single community server.
//
// This package (`github.com/ninjabot/ninjaguard/automod`) scores chat messages per author as they arrive, and removes authors whose score crosses a threshold: the member is kicked, their recent messages are deleted, and an incident report with the removed content is posted for moderators. Scoring looks for the same text posted across channels, attachment floods, invite links, and leaked stream keys.
//
// Message sources must only deliver eligible messages: nothing from the bot itself or other bots, no direct messages, nothing from members holding a moderator role, and only default or reply message types. The consumers in `automod/consumer` apply these rules for Discord.
//
// See `automod/engine` for the decision pipeline, and `cmd/ninjaguard` for a daemon built on this package.
package automod
