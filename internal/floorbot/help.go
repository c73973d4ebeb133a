package floorbot

// Usage is posted to the floor channel when the bot starts.
const Usage = "This bot renders previews of dungeon floors from floor descriptions.\n" +
	"\n" +
	"Post a message with a floor XML file and the bot replies with an image of a generated floor.\n" +
	"Messages without attachments are ignored, so this channel can also be used to discuss floor layouts.\n" +
	"\n" +
	"Attachments:\n" +
	"  - Exactly one XML file: the dungeon floor as exported from SkyTemple. Fixed room settings are ignored.\n" +
	"  - Optionally one ZIP file: a DTEF tileset archive as exported from SkyTemple. Without it the floor\n" +
	"    is drawn with the tileset named in the floor XML.\n" +
	"\n" +
	"Options in the message text change what is drawn:\n" +
	"  - `+onlyfloor`: shortcut for `+nostairs +nomonsters +noflooritems +notraps`\n" +
	"  - `+nostairs`: do not draw stairs\n" +
	"  - `+nomonsters`: do not draw monsters\n" +
	"  - `+noflooritems`: do not draw floor items\n" +
	"  - `+notraps`: do not draw traps\n" +
	"  - `+nokecleon`: do not draw the Kecleon shop\n" +
	"  - `+burieditems`: draw buried items\n" +
	"  - `+nopatches`: generate as if the \"UnusedDungeonChancePatch\" patch is not applied\n" +
	"  - `+seed:<seed>`: seed for the floor generator, so a preview can be reproduced\n" +
	"\n" +
	"Example: \"+onlyfloor +nokecleon +seed:12345\""
