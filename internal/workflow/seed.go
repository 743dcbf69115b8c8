package workflow

// checkInDatePattern accepts the date formats guests actually type:
// ISO dates, day/month, "12 March", weekday names and relative words,
// in English, Malay and Chinese.
const checkInDatePattern = `(?i)\d{4}-\d{1,2}-\d{1,2}` +
	`|\d{1,2}[/.]\d{1,2}` +
	`|\d{1,2} ?(jan|feb|mar|mac|apr|may|mei|jun|jul|aug|ogos|sep|oct|okt|nov|dec|dis)[a-z]*` +
	`|(mon|tues|wednes|thurs|fri|satur|sun)day` +
	`|(isnin|selasa|rabu|khamis|jumaat|sabtu|ahad)` +
	`|\b(today|tonight|tomorrow|esok|next week)\b` +
	`|今天|明天|后天|星期[一二三四五六日天]|周[一二三四五六日天]|\d{1,2}月\d{1,2}[日号]?`

// DefaultDefinitions returns the shipped workflows. Operators replace or
// extend these through the workflows config file.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			ID:     "booking",
			Intent: "booking_inquiry",
			Steps: []Step{
				{
					ID: "guests",
					Prompt: map[string]string{
						"en": "Great, I can help with that. How many guests will be staying?",
						"ms": "Boleh, saya boleh bantu. Untuk berapa orang?",
						"zh": "好的，我可以帮您。请问几位客人入住？",
					},
					Slot:       "guests",
					Validation: `\d+`,
					ValidationMessage: map[string]string{
						"en": "Just the number of guests, please. For example: 2",
						"ms": "Nombor tetamu sahaja, contohnya: 2",
						"zh": "请只回复人数，例如：2",
					},
					Next: "dates",
				},
				{
					ID: "dates",
					Prompt: map[string]string{
						"en": "And what date would you like to check in?",
						"ms": "Tarikh berapa nak daftar masuk?",
						"zh": "请问哪天入住？",
					},
					Slot:       "check_in_date",
					Validation: checkInDatePattern,
					ValidationMessage: map[string]string{
						"en": "Which date should I note? For example: 12 March, this Friday, or 2026-03-12.",
						"ms": "Tarikh mana ya? Contohnya: 12 Mac, Jumaat ini, atau 2026-03-12.",
						"zh": "请告诉我具体日期，例如：3月12日、星期五或 2026-03-12。",
					},
					Next: "nights",
				},
				{
					ID: "nights",
					Prompt: map[string]string{
						"en": "How many nights will you stay?",
						"ms": "Berapa malam nak menginap?",
						"zh": "住几个晚上？",
					},
					Slot:       "nights",
					Validation: `\d+`,
					ValidationMessage: map[string]string{
						"en": "Just the number of nights, please. For example: 2",
						"ms": "Nombor malam sahaja, contohnya: 2",
						"zh": "请只回复晚数，例如：2",
					},
					SideEffects: []string{"notify_staff"},
				},
			},
			Completion: map[string]string{
				"en": "Thanks! I've passed your booking request to our team. We'll confirm availability shortly.",
				"ms": "Terima kasih! Permintaan tempahan dah dihantar kepada tim kami. Kami sahkan sebentar lagi.",
				"zh": "谢谢！您的订房请求已转给我们的团队，稍后为您确认。",
			},
		},
		{
			// Not bound to an intent by default; operators route
			// complaint or facilities traffic here via routing.json.
			ID: "maintenance",
			Steps: []Step{
				{
					ID: "what",
					Prompt: map[string]string{
						"en": "Sorry about that. What exactly is broken or not working?",
						"ms": "Maaf tentang itu. Apa yang rosak atau tak berfungsi?",
						"zh": "很抱歉。请问具体是什么坏了或不能用？",
					},
					Slot: "issue",
					Next: "photo",
				},
				{
					ID: "photo",
					Prompt: map[string]string{
						"en": "Could you send a photo of it? If you can't, just describe where it is.",
						"ms": "Boleh hantar gambar? Kalau tak boleh, terangkan sahaja lokasinya.",
						"zh": "可以发张照片吗？不方便的话，描述一下位置也行。",
					},
					Slot:        "photo",
					SideEffects: []string{"forward_media", "notify_staff", "schedule_followup"},
				},
			},
			Completion: map[string]string{
				"en": "Thanks, our staff will fix it as soon as possible. I'll check back with you later today.",
				"ms": "Terima kasih, staf kami akan baiki secepat mungkin. Saya akan tanya khabar nanti.",
				"zh": "谢谢，工作人员会尽快修理。稍后我再跟进。",
			},
		},
		{
			ID:        "theft_report",
			Intent:    "emergency_theft",
			Emergency: true,
			Steps: []Step{
				{
					ID: "what",
					Prompt: map[string]string{
						"en": "I'm alerting our staff right now. What was taken?",
						"ms": "Saya maklumkan staf sekarang. Apa yang hilang?",
						"zh": "我马上通知工作人员。请问丢了什么？",
					},
					Slot:        "item",
					SideEffects: []string{"notify_staff"},
					Next:        "where",
				},
				{
					ID: "where",
					Prompt: map[string]string{
						"en": "Where did you last see it?",
						"ms": "Kali terakhir nampak di mana?",
						"zh": "最后一次在哪里见到？",
					},
					Slot:        "location",
					SideEffects: []string{"notify_staff"},
				},
			},
			Completion: map[string]string{
				"en": "Our staff are on their way to you now. Please stay where you are if it's safe.",
				"ms": "Staf kami dalam perjalanan. Tunggu di situ jika selamat.",
				"zh": "工作人员正在赶来。如果安全请留在原地。",
			},
		},
	}
}
