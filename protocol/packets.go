package protocol

// Envelope is the discriminator every packet carries, following the
// teacher's common.MsgType convention: decode once into Envelope to learn
// Type, then decode again into the concrete struct it names.
type Envelope struct {
	Type string `json:"type"`
}

// UserRef is how a user is referenced in a packet body (§6's user_ref).
type UserRef struct {
	ID uint32 `json:"id"`
}

// Color mirrors session.Color on the wire, per §6's r,g,b fields.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// --- Server -> client session-level commands ---

type Welcome struct {
	Type            string `json:"type"`
	ProtocolVersion uint32 `json:"protocol_version"`
	Token           string `json:"token"`
	RSAModulus      string `json:"rsa_n"` // base36
	RSAExponent     string `json:"rsa_k"` // base36
}

type SyncInit struct {
	Type                  string `json:"type"`
	NonConnectedUserCount uint32 `json:"non_connected_user_count"`
	DocumentCount         uint32 `json:"document_count"`
	// SelfID is an addition to §6's sync_init(non_connected_user_count,
	// document_count): the newly logged-in user's own allocated id, so the
	// client can tell its own future user_join/user_part/doc_subscribe
	// notices apart from peers' without a separate round trip.
	SelfID uint32 `json:"self_id"`
}

type SyncUsertableUser struct {
	Type string `json:"type"`
	ID   uint32 `json:"id"`
	Name string `json:"name"`
	Color
}

type SyncDoclistDocument struct {
	Type        string    `json:"type"`
	Owner       *UserRef  `json:"owner,omitempty"`
	ID          uint32    `json:"id"`
	Title       string    `json:"title"`
	Suffix      uint32    `json:"suffix"`
	Encoding    string    `json:"encoding"`
	Subscribers []UserRef `json:"subscribers"`
}

type SyncFinal struct {
	Type string `json:"type"`
}

type DocumentCreate struct {
	Type     string   `json:"type"`
	Owner    *UserRef `json:"owner,omitempty"`
	ID       uint32   `json:"id"`
	Title    string   `json:"title"`
	Suffix   uint32   `json:"suffix"`
	Encoding string   `json:"encoding"`
	// Content is only present on the client->server variant of this command
	// (§6: "document_create(id, title, encoding, content)"); the server's
	// broadcast omits it since subscribers receive content via sync_chunk.
	Content string `json:"content,omitempty"`
}

type DocumentRemove struct {
	Type string `json:"type"`
	DocID uint32 `json:"doc_id"`
}

type Message struct {
	Type   string   `json:"type"`
	Writer *UserRef `json:"writer,omitempty"`
	Text   string   `json:"text"`
}

type UserJoin struct {
	Type string `json:"type"`
	ID   uint32 `json:"id"`
	Name string `json:"name"`
	Color
}

type UserPart struct {
	Type string `json:"type"`
	ID   uint32 `json:"id"`
}

type UserColour struct {
	Type string  `json:"type"`
	User UserRef `json:"user"`
	Color
}

type UserColourFailed struct {
	Type string `json:"type"`
}

// --- Within-document commands, both directions ---

type DocRename struct {
	Type     string `json:"type"`
	DocID    uint32 `json:"doc_id"`
	NewTitle string `json:"new_title"`
	// NewSuffix is set on the server->client broadcast; absent on the
	// client's request, which only names the desired title.
	NewSuffix uint32 `json:"new_suffix,omitempty"`
}

type DocRecord struct {
	Type     string `json:"type"`
	DocID    uint32 `json:"doc_id"`
	Author   uint32 `json:"author"`
	SVLocal  uint32 `json:"sv_local"`
	SVRemote uint32 `json:"sv_remote"`
	Op       OpWire `json:"op"`
}

type DocSyncInit struct {
	Type       string `json:"type"`
	DocID      uint32 `json:"doc_id"`
	ChunkCount uint32 `json:"chunk_count"`
}

type DocSyncFinal struct {
	Type  string `json:"type"`
	DocID uint32 `json:"doc_id"`
}

type DocSyncChunk struct {
	Type   string   `json:"type"`
	DocID  uint32   `json:"doc_id"`
	Text   string   `json:"text"`
	Author *UserRef `json:"author,omitempty"`
}

type DocSubscribe struct {
	Type  string `json:"type"`
	DocID uint32 `json:"doc_id"`
	// User is set only on the server's broadcast to other subscribers; a
	// client's own subscribe request carries no payload beyond doc_id.
	User *UserRef `json:"user,omitempty"`
}

type DocUnsubscribe struct {
	Type  string   `json:"type"`
	DocID uint32   `json:"doc_id"`
	User  *UserRef `json:"user,omitempty"`
}

// --- Client -> server session-level commands ---

type Login struct {
	Type          string `json:"type"`
	Name          string `json:"name"`
	Color
	GlobalPwHash string `json:"global_pw_hash"`
	UserPwHash   string `json:"user_pw_hash"`
}

type LoginFailed struct {
	Type   string `json:"type"`
	Reason string `json:"reason"` // COLOR_IN_USE | WRONG_GLOBAL_PASSWORD | WRONG_USER_PASSWORD | PROTOCOL_VERSION_MISMATCH | NOT_ENCRYPTED
}

type UserPassword struct {
	Type          string `json:"type"`
	RSAEncrypted  string `json:"rsa_encrypted"`
}

// Login failure reasons, per §6/§8 S6.
const (
	ReasonColorInUse               = "COLOR_IN_USE"
	ReasonWrongGlobalPassword      = "WRONG_GLOBAL_PASSWORD"
	ReasonWrongUserPassword        = "WRONG_USER_PASSWORD"
	ReasonProtocolVersionMismatch  = "PROTOCOL_VERSION_MISMATCH"
	ReasonNotEncrypted             = "NOT_ENCRYPTED"
)
