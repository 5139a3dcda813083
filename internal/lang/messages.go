package lang

// Catalog holds one locale's bot texts. Fields with verbs are fmt templates;
// the argument order is identical across locales.
type Catalog struct {
	Welcome           string // args: price, free channel
	Subscribe         string // args: price, price, days
	AlreadySubscribed string
	PaymentSuccess    string
	NotSubscribed     string
	Cancelled         string
	StatusActive      string // arg: days remaining
	TryAgain          string
}

var catalogs = map[string]Catalog{
	"ar": {
		Welcome: `🎯 مرحباً بك في YallaBets VIP!

💎 اشترك الآن واحصل على:
• 10-30 توقع أسبوعياً
• تحليلات مفصلة
• نسبة نجاح 85%%+
• تحديثات مباشرة

💰 السعر: $%d/شهر

الأوامر:
/subscribe - اشترك في VIP
/status - حالة الاشتراك
/cancel - إلغاء الاشتراك
/help - المساعدة

🆓 القناة المجانية: %s
🌐 الموقع: yallabets.com`,
		Subscribe: `💎 اشترك في YallaBets VIP

احصل على 10-30 توقع أسبوعياً!

💰 السعر: %d Stars ($%d)
⏰ المدة: %d يوم

اضغط الزر بالأسفل للاشتراك!`,
		AlreadySubscribed: "✅ أنت مشترك بالفعل في VIP!\n\nاستخدم /status لمعرفة تاريخ انتهاء الاشتراك.",
		PaymentSuccess:    "🎉 تم الاشتراك بنجاح!\n\nتم إضافتك للقناة VIP.\nاستمتع بالتوقعات الحصرية!",
		NotSubscribed:     "❌ أنت غير مشترك في VIP.\n\nاستخدم /subscribe للاشتراك!",
		Cancelled:         "✅ تم إلغاء الاشتراك.\n\nشكراً لاستخدامك YallaBets!",
		StatusActive:      "✅ اشتراكك نشط!\n\n⏰ الأيام المتبقية: %d يوم",
		TryAgain:          "⚠️ حدث خطأ ما. حاول مرة أخرى لاحقاً.",
	},
	"en": {
		Welcome: `🎯 Welcome to YallaBets VIP!

💎 Subscribe now and get:
• 10-30 picks per week
• Detailed analysis
• 85%%+ win rate
• Live updates

💰 Price: $%d/month

Commands:
/subscribe - Subscribe to VIP
/status - Check subscription
/cancel - Cancel subscription
/help - Show help

🆓 Free Channel: %s
🌐 Website: yallabets.com`,
		Subscribe: `💎 Subscribe to YallaBets VIP

Get 10-30 picks per week!

💰 Price: %d Stars ($%d)
⏰ Duration: %d days

Click the button below to subscribe!`,
		AlreadySubscribed: "✅ You are already subscribed to VIP!\n\nUse /status to check your subscription.",
		PaymentSuccess:    "🎉 Subscription successful!\n\nYou have been added to the VIP channel.\nEnjoy exclusive predictions!",
		NotSubscribed:     "❌ You are not subscribed to VIP.\n\nUse /subscribe to get started!",
		Cancelled:         "✅ Subscription cancelled.\n\nThank you for using YallaBets!",
		StatusActive:      "✅ Your subscription is active!\n\n⏰ Days remaining: %d days",
		TryAgain:          "⚠️ Something went wrong. Please try again later.",
	},
}

// Pick maps a Telegram language_code onto a catalog, defaulting to English.
func Pick(code string) Catalog {
	if c, ok := catalogs[code]; ok {
		return c
	}
	return catalogs["en"]
}
