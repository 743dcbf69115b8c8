package router

import (
	"fmt"
	"strings"
	"sync"
)

var repliesMu sync.RWMutex

// staticReplies are the canned responses served without a provider call,
// keyed by intent then language. Operators override these through the
// settings file; this is the shipped set.
var staticReplies = map[string]map[string]string{
	"greeting": {
		"en": "Hi! I'm %s, the assistant here. I can help with bookings, check-in and checkout times, wifi, pricing, directions and luggage storage. What can I do for you?",
		"ms": "Hai! Saya %s, pembantu di sini. Saya boleh bantu dengan tempahan, waktu daftar masuk dan keluar, wifi, harga, arah dan simpanan bagasi. Apa yang boleh saya bantu?",
		"zh": "您好！我是%s，这里的助手。我可以帮您处理订房、入住退房时间、wifi、价格、路线和行李寄存。需要什么帮助吗？",
	},
	"thanks": {
		"en": "You're welcome! Let me know if there's anything else.",
		"ms": "Sama-sama! Beritahu saya jika ada apa-apa lagi.",
		"zh": "不客气！还有其他需要随时告诉我。",
	},
	"goodbye": {
		"en": "Take care! Message me anytime you need something.",
		"ms": "Jaga diri! Mesej saya bila-bila masa jika perlukan apa-apa.",
		"zh": "再见！有需要随时找我。",
	},
	"card_locked": {
		"en": "Sorry about that! I've let our staff know your key card isn't working. Someone will come to you shortly. If you're locked out right now, the front desk can buzz you in.",
		"ms": "Maaf tentang itu! Saya dah maklumkan staf yang kad anda tak berfungsi. Ada orang akan datang sebentar lagi. Jika terkunci di luar sekarang, kaunter boleh bukakan pintu.",
		"zh": "抱歉！我已通知工作人员您的门卡无法使用，马上有人来协助。如果现在被锁在外面，前台可以帮您开门。",
	},
}

// StaticReply returns the canned reply for an intent, or empty when none
// exists. The assistant name is substituted where the text expects it.
func StaticReply(intent, lang, assistantName string) string {
	repliesMu.RLock()
	defer repliesMu.RUnlock()
	texts, ok := staticReplies[intent]
	if !ok {
		return ""
	}
	text, ok := texts[lang]
	if !ok {
		text = texts["en"]
	}
	if text == "" {
		return ""
	}
	if assistantName == "" {
		assistantName = "Rainbow"
	}
	if strings.Contains(text, "%s") {
		return fmt.Sprintf(text, assistantName)
	}
	return text
}

// SetStaticReplies replaces the canned reply table, typically after a
// settings reload. An empty map restores nothing; callers pass the full
// table.
func SetStaticReplies(replies map[string]map[string]string) {
	if len(replies) == 0 {
		return
	}
	repliesMu.Lock()
	staticReplies = replies
	repliesMu.Unlock()
}

// escalationAck tells the guest staff are on the way.
func escalationAck(lang string) string {
	switch lang {
	case "ms":
		return "Saya dah maklumkan tim kami. Seseorang akan balas di sini sebentar lagi."
	case "zh":
		return "我已通知我们的团队，很快会有人在这里回复您。"
	default:
		return "I've alerted our team. Someone will reply to you here shortly."
	}
}

// urgencyAck is the immediate reply for emergencies, sent before any
// provider call.
func urgencyAck(lang string) string {
	switch lang {
	case "ms":
		return "Saya faham ini kecemasan. Staf kami dimaklumkan sekarang juga."
	case "zh":
		return "我明白这是紧急情况，已立刻通知我们的工作人员。"
	default:
		return "I understand this is urgent. Our staff are being alerted right now."
	}
}

// frustrationAck is used on the repeated-question and negative-sentiment
// escalations. It apologizes before handing over.
func frustrationAck(lang string) string {
	switch lang {
	case "ms":
		return "Maaf kerana ini belum selesai. Saya dah panggil tim kami, seseorang akan balas di sini sebentar lagi."
	case "zh":
		return "抱歉没能帮您解决。我已请我们的团队介入，很快会有人在这里回复您。"
	default:
		return "I'm sorry this hasn't been resolved. I've asked our team to step in, and someone will reply to you here shortly."
	}
}

// fallbackReply is served when providers or the deadline fail mid-turn.
func fallbackReply(lang string) string {
	switch lang {
	case "ms":
		return "Maaf, saya tak dapat proses mesej itu sekarang. Cuba sebentar lagi, atau hubungi kaunter di +60 12-390 0000."
	case "zh":
		return "抱歉，我现在无法处理您的消息。请稍后再试，或致电前台 +60 12-390 0000。"
	default:
		return "Sorry, I couldn't process that just now. Please try again in a moment, or call the front desk at +60 12-390 0000."
	}
}

// reviewNotice is shown in preview responses when a draft awaits staff
// approval in copilot mode.
func reviewNotice(lang string) string {
	switch lang {
	case "ms":
		return "Mesej anda dah sampai. Staf kami akan balas sebentar lagi."
	case "zh":
		return "您的消息已收到，我们的员工会尽快回复。"
	default:
		return "Thanks, your message has been received. Our staff will reply shortly."
	}
}
