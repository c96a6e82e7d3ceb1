package telegram

import (
	"encoding/json"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var (
	startCmd = tgbotapi.BotCommand{
		Command:     "start",
		Description: "Главное меню",
	}
	statusCmd = tgbotapi.BotCommand{
		Command:     "status",
		Description: "Статус подписки",
	}
	helpCmd = tgbotapi.BotCommand{
		Command:     "help",
		Description: "Помощь",
	}
	adminCmd = tgbotapi.BotCommand{
		Command:     "admin",
		Description: "Админ-панель",
	}
)

const helpText = "ℹ️ Доступные команды:\n\n" +
	"/start - Главное меню\n" +
	"/status - Статус подписки\n" +
	"/help - Показать эту справку\n\n" +
	"Для оплаты и записи используйте кнопки меню."

const welcomeText = "🧘 Добро пожаловать в поле Resonance!\n\n" +
	"Поле триединства: дух • душа • тело — в лице трёх мастеров.\n" +
	"3 раза в неделю живые эфиры: сатсанги, практики, разборы, задания и новая информация.\n\n" +
	"Выберите действие в меню ниже."

// setMyCommands registers the user-visible command list; /admin is kept out
// of it on purpose.
func (b *Bot) setMyCommands() error {
	params := make(tgbotapi.Params)
	data, err := json.Marshal([]tgbotapi.BotCommand{startCmd, statusCmd, helpCmd})
	if err != nil {
		return err
	}
	params.AddNonEmpty("commands", string(data))
	_, err = b.api.MakeRequest("setMyCommands", params)
	return err
}
