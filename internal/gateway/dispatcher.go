package gateway

// Dispatcher is the interface services use to push events to connected
// clients. The concrete Manager implements it.
//
// MESSAGE_CREATE and CONVERSATION_CREATE go to participants' connections
// regardless of thread subscriptions, so the directory badge stays live.
// Thread-scoped events (typing) go only to subscribers of the conversation.
type Dispatcher interface {
	DispatchToUser(userID int64, event string, data any)
	DispatchToSubscribers(conversationID, exceptUserID int64, event string, data any)
}
