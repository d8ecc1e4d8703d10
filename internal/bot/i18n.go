package bot

import "fmt"

const defaultLanguage = "en"

// languageButtons maps the language picker labels to language codes. Order
// is the keyboard order.
var languageButtons = []struct {
	Label string
	Code  string
}{
	{"🇺🇸 English", "en"},
	{"🇮🇷 فارسی", "fa"},
	{"🇹🇲 Türkmençe", "tk"},
	{"🇸🇦 العربية", "ar"},
	{"🇷🇺 Русский", "ru"},
}

const languagePrompt = "Please select your language:\n\nلطفاً زبان خود را انتخاب کنید:\nDiliňizi saýlaň:\nالرجاء اختيار لغتك:\nПожалуйста, выберите ваш язык:"

// Keys every language must define because they label menu buttons.
const (
	keyMyConfigs    = "my_configs"
	keyPurchasePlan = "purchase_plan"
	keyDownloads    = "downloads"
	keySupport      = "support"
	keyTestConfig   = "test_config"
)

var menuKeys = []string{keyMyConfigs, keyPurchasePlan, keyDownloads, keySupport, keyTestConfig}

var translations = map[string]map[string]string{
	"en": {
		"welcome":           "Welcome to our VPN Service! 🌐\n\nHere you can:\n📱 View your configs\n💰 Purchase new plans\n⬇️ Download our apps\n📞 Get support\n\nPlease use the menu below to get started!",
		"language_selected": "Language set to English!",
		keyMyConfigs:        "📱 My Configs",
		keyPurchasePlan:     "💰 Purchase Plan",
		keyDownloads:        "⬇️ Downloads",
		keySupport:          "📞 Support",
		keyTestConfig:       "🎁 Test Config",

		"select_plan":        "Select a plan to purchase:",
		"no_plans":           "No plans are available right now. Please check back later.",
		"plan_button":        "%d GB - $%s 💰",
		"invalid_plan":       "Invalid plan selected",
		"payment_created":    "💰 Payment for %dGB Plan\n\nAmount: $%s\nPayment ID: %s\n\nClick the button below to proceed with payment.\nThe config will be created automatically after payment is confirmed.",
		"pay_now":            "💳 Pay Now",
		"cancel_payment":     "❌ Cancel payment",
		"payment_cancelled":  "Payment %s was cancelled.",
		"cancel_failed":      "This payment can no longer be cancelled.",
		"payment_not_ready":  "❌ Payment system is not configured yet. Please contact support.",
		"payment_error":      "❌ Failed to create payment. Please try again later or contact support.",
		"test_mode_created":  "✅ Test Mode: Config created successfully!",
		"payment_confirmed":  "✅ Payment confirmed! Your config is ready.",
		"underpaid":          "⚠️ Payment underpaid ($%s of $%s)\nPlease contact support.",
		"overpaid":           "⚠️ Note: Payment was overpaid ($%s of $%s)\nPlease contact support for a refund.",
		"expired":            "❌ Payment session expired. Please try again.",
		"status_error":       "❌ Error checking payment status. Please contact support.\nPayment ID: %s",
		"provision_failed":   "❌ Your payment was received but the config could not be created. Support has been notified.\nPayment ID: %s",
		"no_configs":         "You don't have any active configs. Use the Purchase Plan option to get started!",
		"configs_error":      "Error retrieving configs. Please try again later.",
		"test_used":          "❌ You have already used your test config. Please purchase a plan to get a new config.",
		"test_failed":        "❌ Could not create a test config right now. Please try again later.",
		"downloads_title":    "Download our apps:",
		"config_caption":     "📱 Config: %s\n📊 Traffic: %s/%s GB\n📅 Days: %d/%d\n\n📝 Config Text:\n<code>%s</code>",
		"config_uri_missing": "(connection link unavailable, use My Configs later)",
		"use_menu":           "Please use the menu below.",
	},
	"fa": {
		"welcome":           "به سرویس VPN ما خوش آمدید! 🌐\n\nدر اینجا می‌توانید:\n📱 مشاهده پیکربندی‌ها\n💰 خرید پلن جدید\n⬇️ دانلود اپلیکیشن‌ها\n📞 پشتیبانی\n\nلطفاً از منوی زیر شروع کنید!",
		"language_selected": "زبان به فارسی تغییر کرد!",
		keyMyConfigs:        "📱 پیکربندی‌های من",
		keyPurchasePlan:     "💰 خرید پلن",
		keyDownloads:        "⬇️ دانلود‌ها",
		keySupport:          "📞 پشتیبانی",
		keyTestConfig:       "🎁 کانفیگ تست",

		"select_plan":       "یک پلن برای خرید انتخاب کنید:",
		"no_plans":          "در حال حاضر پلنی موجود نیست.",
		"pay_now":           "💳 پرداخت",
		"payment_not_ready": "❌ سیستم پرداخت هنوز پیکربندی نشده است. لطفاً با پشتیبانی تماس بگیرید.",
		"payment_error":     "❌ ایجاد پرداخت ناموفق بود. لطفاً بعداً دوباره تلاش کنید.",
		"payment_confirmed": "✅ پرداخت تایید شد! کانفیگ شما آماده است.",
		"expired":           "❌ مهلت پرداخت به پایان رسید. لطفاً دوباره تلاش کنید.",
		"no_configs":        "شما کانفیگ فعالی ندارید. برای شروع از گزینه خرید پلن استفاده کنید!",
		"test_used":         "❌ شما قبلاً از کانفیگ تست استفاده کرده‌اید.",
		"downloads_title":   "اپلیکیشن‌های ما را دانلود کنید:",
	},
	"tk": {
		"welcome":           "VPN Hyzmatymyza hoş geldiňiz! 🌐\n\nBu ýerde siz:\n📱 Konfigurasiýalaryňyzy görüp bilersiňiz\n💰 Täze meýilnama satyn alyp bilersiňiz\n⬇️ Programmalarymyzy ýükläp bilersiňiz\n📞 Goldaw alyp bilersiňiz\n\nBaşlamak üçin aşakdaky menýuny ulanyň!",
		"language_selected": "Dil türkmençä üýtgedildi!",
		keyMyConfigs:        "📱 Meniň konfigurasiýalarym",
		keyPurchasePlan:     "💰 Meýilnama satyn al",
		keyDownloads:        "⬇️ Ýüklemeler",
		keySupport:          "📞 Goldaw",
		keyTestConfig:       "🎁 Synag konfigurasiýasy",
	},
	"ar": {
		"welcome":           "مرحباً بك في خدمة VPN! 🌐\n\nهنا يمكنك:\n📱 عرض الإعدادات\n💰 شراء باقات جديدة\n⬇️ تحميل تطبيقاتنا\n📞 الدعم الفني\n\nيرجى استخدام القائمة أدناه للبدء!",
		"language_selected": "تم تغيير اللغة إلى العربية!",
		keyMyConfigs:        "📱 إعداداتي",
		keyPurchasePlan:     "💰 شراء باقة",
		keyDownloads:        "⬇️ التحميلات",
		keySupport:          "📞 الدعم",
		keyTestConfig:       "🎁 اختبار التكوين",
	},
	"ru": {
		"welcome":           "Добро пожаловать в наш VPN сервис! 🌐\n\nЗдесь вы можете:\n📱 Просмотреть ваши конфигурации\n💰 Купить новые планы\n⬇️ Скачать наши приложения\n📞 Получить поддержку\n\nИспользуйте меню ниже, чтобы начать!",
		"language_selected": "Язык изменен на русский!",
		keyMyConfigs:        "📱 Мои конфигурации",
		keyPurchasePlan:     "💰 Купить план",
		keyDownloads:        "⬇️ Загрузки",
		keySupport:          "📞 Поддержка",
		keyTestConfig:       "🎁 Тестовая конфигурация",

		"select_plan":       "Выберите план для покупки:",
		"pay_now":           "💳 Оплатить",
		"payment_confirmed": "✅ Оплата подтверждена! Ваша конфигурация готова.",
		"expired":           "❌ Срок оплаты истёк. Попробуйте снова.",
		"no_configs":        "У вас нет активных конфигураций. Купите план, чтобы начать!",
	},
}

// tr returns the text for key in lang, falling back to English. Extra args
// are applied with fmt.Sprintf.
func tr(lang, key string, args ...interface{}) string {
	text, ok := translations[lang][key]
	if !ok {
		text, ok = translations[defaultLanguage][key]
		if !ok {
			return key
		}
	}
	if len(args) > 0 {
		return fmt.Sprintf(text, args...)
	}
	return text
}

// languageCode resolves a picker label, "" when text is not one.
func languageCode(text string) string {
	for _, l := range languageButtons {
		if l.Label == text {
			return l.Code
		}
	}
	return ""
}

// menuAction reports which client menu key text belongs to, in any
// language. Users keep working after switching language with an old
// keyboard still on screen.
func menuAction(text string) string {
	for _, strs := range translations {
		for _, key := range menuKeys {
			if strs[key] == text {
				return key
			}
		}
	}
	return ""
}

func normalizeLanguage(code string) string {
	if _, ok := translations[code]; ok {
		return code
	}
	return defaultLanguage
}
