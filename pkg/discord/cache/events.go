package cache

// EventKind names a gateway event type the cache understands. Values are the gateway
// dispatch names.
type EventKind string

const (
	KindChannelCreate            EventKind = "CHANNEL_CREATE"
	KindChannelUpdate            EventKind = "CHANNEL_UPDATE"
	KindChannelDelete            EventKind = "CHANNEL_DELETE"
	KindChannelPinsUpdate        EventKind = "CHANNEL_PINS_UPDATE"
	KindGuildCreate              EventKind = "GUILD_CREATE"
	KindGuildUpdate              EventKind = "GUILD_UPDATE"
	KindGuildDelete              EventKind = "GUILD_DELETE"
	KindGuildEmojisUpdate        EventKind = "GUILD_EMOJIS_UPDATE"
	KindGuildStickersUpdate      EventKind = "GUILD_STICKERS_UPDATE"
	KindGuildMemberAdd           EventKind = "GUILD_MEMBER_ADD"
	KindGuildMemberRemove        EventKind = "GUILD_MEMBER_REMOVE"
	KindGuildMemberUpdate        EventKind = "GUILD_MEMBER_UPDATE"
	KindGuildMembersChunk        EventKind = "GUILD_MEMBERS_CHUNK"
	KindGuildRoleCreate          EventKind = "GUILD_ROLE_CREATE"
	KindGuildRoleUpdate          EventKind = "GUILD_ROLE_UPDATE"
	KindGuildRoleDelete          EventKind = "GUILD_ROLE_DELETE"
	KindMessageCreate            EventKind = "MESSAGE_CREATE"
	KindMessageUpdate            EventKind = "MESSAGE_UPDATE"
	KindMessageDelete            EventKind = "MESSAGE_DELETE"
	KindMessageDeleteBulk        EventKind = "MESSAGE_DELETE_BULK"
	KindPresenceUpdate           EventKind = "PRESENCE_UPDATE"
	KindReady                    EventKind = "READY"
	KindThreadCreate             EventKind = "THREAD_CREATE"
	KindThreadUpdate             EventKind = "THREAD_UPDATE"
	KindThreadDelete             EventKind = "THREAD_DELETE"
	KindUserUpdate               EventKind = "USER_UPDATE"
	KindVoiceStateUpdate         EventKind = "VOICE_STATE_UPDATE"
	KindVoiceChannelStatusUpdate EventKind = "VOICE_CHANNEL_STATUS_UPDATE"
)

// Kinds lists every event kind the cache applies.
var Kinds = []EventKind{
	KindChannelCreate, KindChannelUpdate, KindChannelDelete, KindChannelPinsUpdate,
	KindGuildCreate, KindGuildUpdate, KindGuildDelete,
	KindGuildEmojisUpdate, KindGuildStickersUpdate,
	KindGuildMemberAdd, KindGuildMemberRemove, KindGuildMemberUpdate, KindGuildMembersChunk,
	KindGuildRoleCreate, KindGuildRoleUpdate, KindGuildRoleDelete,
	KindMessageCreate, KindMessageUpdate, KindMessageDelete, KindMessageDeleteBulk,
	KindPresenceUpdate, KindReady,
	KindThreadCreate, KindThreadUpdate, KindThreadDelete,
	KindUserUpdate, KindVoiceStateUpdate, KindVoiceChannelStatusUpdate,
}

// Event is a decoded gateway event the cache can apply. The set of implementations is
// closed: every event type lives in this package.
//
// Events are passed by pointer because applying one may normalize its payload in place,
// for example replacing a member's user with the canonical cached copy before the event
// is handed on to application code.
type Event interface {
	Kind() EventKind
	apply(c *Cache) any
}

func (*ChannelCreate) Kind() EventKind            { return KindChannelCreate }
func (*ChannelUpdate) Kind() EventKind            { return KindChannelUpdate }
func (*ChannelDelete) Kind() EventKind            { return KindChannelDelete }
func (*ChannelPinsUpdate) Kind() EventKind        { return KindChannelPinsUpdate }
func (*GuildCreate) Kind() EventKind              { return KindGuildCreate }
func (*GuildUpdate) Kind() EventKind              { return KindGuildUpdate }
func (*GuildDelete) Kind() EventKind              { return KindGuildDelete }
func (*GuildEmojisUpdate) Kind() EventKind        { return KindGuildEmojisUpdate }
func (*GuildStickersUpdate) Kind() EventKind      { return KindGuildStickersUpdate }
func (*GuildMemberAdd) Kind() EventKind           { return KindGuildMemberAdd }
func (*GuildMemberRemove) Kind() EventKind        { return KindGuildMemberRemove }
func (*GuildMemberUpdate) Kind() EventKind        { return KindGuildMemberUpdate }
func (*GuildMembersChunk) Kind() EventKind        { return KindGuildMembersChunk }
func (*GuildRoleCreate) Kind() EventKind          { return KindGuildRoleCreate }
func (*GuildRoleUpdate) Kind() EventKind          { return KindGuildRoleUpdate }
func (*GuildRoleDelete) Kind() EventKind          { return KindGuildRoleDelete }
func (*MessageCreate) Kind() EventKind            { return KindMessageCreate }
func (*MessageUpdate) Kind() EventKind            { return KindMessageUpdate }
func (*MessageDelete) Kind() EventKind            { return KindMessageDelete }
func (*MessageDeleteBulk) Kind() EventKind        { return KindMessageDeleteBulk }
func (*PresenceUpdate) Kind() EventKind           { return KindPresenceUpdate }
func (*Ready) Kind() EventKind                    { return KindReady }
func (*ThreadCreate) Kind() EventKind             { return KindThreadCreate }
func (*ThreadUpdate) Kind() EventKind             { return KindThreadUpdate }
func (*ThreadDelete) Kind() EventKind             { return KindThreadDelete }
func (*UserUpdate) Kind() EventKind               { return KindUserUpdate }
func (*VoiceStateUpdate) Kind() EventKind         { return KindVoiceStateUpdate }
func (*VoiceChannelStatusUpdate) Kind() EventKind { return KindVoiceChannelStatusUpdate }
