package intent

// DefaultKeywords is the shipped T2 keyword table. Operators extend it
// through the config store; this set covers the common front-desk phrasing
// in English, Malay and Chinese.
func DefaultKeywords() map[string][]string {
	return map[string][]string{
		"greeting": {
			"hello", "hi", "hey", "good morning", "good afternoon",
			"good evening", "helo", "selamat pagi", "selamat petang",
			"你好", "哈咯", "早上好",
		},
		"booking_inquiry": {
			"book a room", "make a booking", "do you have rooms available",
			"i want to book", "nak tempah bilik", "ada bilik kosong",
			"订房", "有房间吗",
		},
		"check_in": {
			"check in", "what time is check in", "when can i check in",
			"early check in", "daftar masuk", "几点入住", "入住时间",
		},
		"check_out": {
			"check out", "what time is check out", "late check out",
			"daftar keluar", "几点退房", "退房时间",
		},
		"pricing": {
			"how much", "price", "rates", "how much per night",
			"berapa harga", "berapa satu malam", "多少钱", "价格",
		},
		"wifi": {
			"wifi", "wifi password", "what is the wifi password",
			"internet password", "kata laluan wifi", "无线密码", "wifi密码",
		},
		"facilities": {
			"shower", "locker", "kitchen", "laundry", "common room",
			"tandas", "dapur", "洗衣", "厨房", "淋浴",
		},
		"directions": {
			"how do i get there", "where are you located", "address",
			"directions", "macam mana nak pergi", "alamat", "地址", "怎么去",
		},
		"luggage": {
			"luggage", "store my bags", "can i leave my luggage",
			"simpan beg", "行李寄存", "寄存行李",
		},
		"complaint": {
			"too noisy", "room is dirty", "not clean", "aircond not working",
			"bilik kotor", "bising sangat", "太吵", "房间很脏",
		},
		"thanks": {
			"thank you", "thanks", "thank you so much", "terima kasih",
			"谢谢", "感谢",
		},
		"goodbye": {
			"bye", "goodbye", "see you", "selamat tinggal", "再见", "拜拜",
		},
	}
}

// DefaultExamples is the shipped T3 utterance set, embedded once and
// cached. Phrasings here deliberately avoid the exact T2 keywords so the
// semantic tier covers the gap between keyword hits and free text.
func DefaultExamples() map[string][]string {
	return map[string][]string{
		"booking_inquiry": {
			"are there any beds free this weekend",
			"my friend wants to stay two nights next month",
			"can i change my reservation to a private room",
		},
		"check_in": {
			"we land at midnight, can we still get our keys",
			"is it possible to arrive before noon",
		},
		"check_out": {
			"our flight leaves late, can we stay in the room longer",
			"what happens if we leave after eleven",
		},
		"pricing": {
			"what would a dorm bed cost for three nights",
			"is breakfast included in the rate",
			"do you take credit cards or cash only",
		},
		"wifi": {
			"my laptop cannot find the network",
			"how do i get online in the room",
		},
		"facilities": {
			"is there somewhere to cook my own food",
			"can i wash my clothes somewhere",
			"do the rooms have air conditioning",
		},
		"directions": {
			"which bus goes from the airport to you",
			"i am at the train station, which exit do i take",
		},
		"luggage": {
			"can you keep our backpacks until tonight",
			"we checked out already but our bus is at 9pm",
		},
		"complaint": {
			"the people in the next bunk kept me awake all night",
			"the sheets were not changed when we arrived",
			"nobody came to fix the shower after i reported it",
		},
	}
}
