package feed

func MessagesTopic(chatID string) string {
	return "messages:" + chatID
}

func ChatListTopic(userID string) string {
	return "chatlist:" + userID
}

func ContactsTopic(userID string) string {
	return "contacts:" + userID
}

func PresenceTopic(userID string) string {
	return "presence:" + userID
}
